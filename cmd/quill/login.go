package main

import (
	"bufio"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/omochice/quill/internal/config"
)

func newLoginCmd(a *app) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the API token",
		Long:  "Store the bearer token sent with every request. Without --token it is read from stdin.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if token == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "token: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("no token given")
				}
				token = line
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return errors.New("token is empty")
			}
			if err := a.tokens.SetToken(token); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "token saved to "+a.tokens.Path())
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "API token")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.tokens.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "base_url   %s\n", a.cfg.BaseURL)
			fmt.Fprintf(out, "ws_url     %s\n", a.cfg.WSURL)
			fmt.Fprintf(out, "sse_url    %s\n", a.cfg.SSEURL)
			fmt.Fprintf(out, "token_file %s\n", a.cfg.TokenFile)
			fmt.Fprintf(out, "reconnect  every %s, at most %d attempts\n",
				a.cfg.Stream.ReconnectInterval, a.cfg.Stream.MaxReconnectAttempts)
			fmt.Fprintf(out, "heartbeat  %s\n", a.cfg.Stream.HeartbeatInterval)
			fmt.Fprintf(out, "autosave   %s\n", a.cfg.Autosave.Delay)
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := filepath.Join(a.dir, "config.toml")
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote "+path)
			return nil
		},
	})
	return cmd
}
