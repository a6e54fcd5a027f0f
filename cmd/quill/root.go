package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/omochice/quill/internal/api"
	"github.com/omochice/quill/internal/config"
	"github.com/omochice/quill/internal/rest"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

// app holds what subcommands share once configuration is loaded.
type app struct {
	cfg    *config.Config
	dir    string
	log    *slog.Logger
	tokens *rest.FileTokenStore
	rest   *rest.Client
	api    *api.API
}

func (a *app) load(opts *rootOptions, stderr io.Writer) error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}
	cfg, err := config.Load(viper.New(), dir, opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.verbose {
		cfg.LogLevel = "debug"
	}

	a.cfg = cfg
	a.dir = dir
	a.log = cfg.Logger(stderr)
	slog.SetDefault(a.log)

	a.tokens = rest.NewFileTokenStore(cfg.TokenFile)
	a.rest = rest.New(cfg.BaseURL, a.tokens)
	a.rest.Logger = a.log
	a.api = api.New(a.rest)
	return nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "quill",
		Short: "Terminal client for the quill writing assistant",
		Long: `quill talks to the writing assistant backend from the terminal.

Chat with the assistant over a streaming session, run agents, read and edit
documents of your works, and manage plugins.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(opts, cmd.ErrOrStderr())
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.quill/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		newChatCmd(a),
		newAgentCmd(a),
		newWorksCmd(a),
		newDocCmd(a),
		newDraftsCmd(a),
		newPluginsCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newConfigCmd(a),
	)
	return rootCmd
}
