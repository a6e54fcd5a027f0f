package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newWorksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "works",
		Short: "List your works",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			works, err := a.api.Works.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list works: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(works) == 0 {
				fmt.Fprintln(out, statusStyle.Render("no works yet"))
				return nil
			}
			fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%d works", len(works))))
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, w := range works {
				updated := "-"
				if !w.UpdatedAt.IsZero() {
					updated = w.UpdatedAt.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", idStyle.Render(w.ID), w.Title, updated)
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create <title> [description]",
		Short: "Create a work",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			description := ""
			if len(args) == 2 {
				description = args[1]
			}
			w, err := a.api.Works.Create(cmd.Context(), strings.TrimSpace(args[0]), description)
			if err != nil {
				return fmt.Errorf("create work: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s\n", idStyle.Render(w.ID), w.Title)
			return nil
		},
	})
	return cmd
}
