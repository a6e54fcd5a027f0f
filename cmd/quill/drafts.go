package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omochice/quill/internal/drafts"
)

func newDraftsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "List unsaved document drafts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cache, err := drafts.Open(a.cfg.Autosave.DraftsDB)
			if err != nil {
				return err
			}
			defer func() { _ = cache.Close() }()

			list, err := cache.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), statusStyle.Render("no unsaved drafts"))
				return nil
			}
			for _, d := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %d bytes\n",
					idStyle.Render(d.DocID), d.UpdatedAt.Local().Format("2006-01-02 15:04:05"), len(d.Content))
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "restore <doc-id>",
		Short: "Upload a draft and drop it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := drafts.Open(a.cfg.Autosave.DraftsDB)
			if err != nil {
				return err
			}
			defer func() { _ = cache.Close() }()

			ctx := cmd.Context()
			d, err := cache.Get(ctx, args[0])
			if errors.Is(err, drafts.ErrNotFound) {
				return fmt.Errorf("no draft for %s", args[0])
			}
			if err != nil {
				return err
			}
			doc, err := a.api.Documents.SaveContent(ctx, d.DocID, d.Content)
			if err != nil {
				return fmt.Errorf("save draft: %w", err)
			}
			if err := cache.Delete(ctx, d.DocID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored draft of %s as v%d\n", idStyle.Render(doc.ID), doc.Version)
			return nil
		},
	})
	return cmd
}
