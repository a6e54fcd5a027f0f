package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omochice/quill/internal/optimistic"
)

func newPluginsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			plugins, err := a.api.Plugins.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list plugins: %w", err)
			}
			for _, p := range plugins {
				state := statusStyle.Render("disabled")
				if p.Enabled {
					state = enabledStyle.Render("enabled")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", idStyle.Render(p.ID), p.Name, state)
			}
			return nil
		},
	}
	cmd.AddCommand(newPluginToggleCmd(a, true), newPluginToggleCmd(a, false))
	return cmd
}

func newPluginToggleCmd(a *app, enable bool) *cobra.Command {
	use, short := "disable <plugin-id>", "Disable a plugin"
	if enable {
		use, short = "enable <plugin-id>", "Enable a plugin"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			out := cmd.OutOrStdout()

			states := optimistic.New[string, bool]()
			states.Subscribe(func(key string) {
				v, _ := states.Get(key)
				label := "disabled"
				if v {
					label = "enabled"
				}
				if states.IsPending(key) {
					label += " (saving)"
				}
				fmt.Fprintf(out, "%s %s\n", idStyle.Render(key), label)
			})
			states.Set(id, !enable)

			err := states.Mutate(cmd.Context(), id, enable, func(ctx context.Context, v bool) (bool, error) {
				p, err := a.api.Plugins.SetEnabled(ctx, id, v)
				if err != nil {
					return false, err
				}
				return p.Enabled, nil
			})
			if err != nil {
				return fmt.Errorf("update plugin: %w", err)
			}
			return nil
		},
	}
}
