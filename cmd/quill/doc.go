package main

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/spf13/cobra"

	"github.com/omochice/quill/internal/autosave"
	"github.com/omochice/quill/internal/drafts"
)

func newDocCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Read and edit documents",
	}
	cmd.AddCommand(
		newDocShowCmd(a),
		newDocVersionsCmd(a),
		newDocRestoreCmd(a),
		newDocEditCmd(a),
	)
	return cmd
}

func newDocShowCmd(a *app) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "show <doc-id>",
		Short: "Print a document as Markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.api.Documents.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get document: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render(doc.Title)+" "+idStyle.Render(fmt.Sprintf("v%d", doc.Version)))
			if raw {
				fmt.Fprintln(out, doc.Content)
				return nil
			}
			md, err := htmltomarkdown.ConvertString(doc.Content)
			if err != nil {
				return fmt.Errorf("convert document: %w", err)
			}
			fmt.Fprintln(out, md)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the stored HTML")
	return cmd
}

func newDocVersionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "versions <doc-id>",
		Short: "List saved versions of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			versions, err := a.api.Documents.Versions(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("list versions: %w", err)
			}
			for _, v := range versions {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %d bytes\n",
					idStyle.Render(fmt.Sprintf("v%d", v.Version)), v.CreatedAt.Format("2006-01-02 15:04"), len(v.Content))
			}
			return nil
		},
	}
}

func newDocRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <doc-id> <version>",
		Short: "Make an old version current",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(strings.TrimPrefix(args[1], "v"))
			if err != nil {
				return fmt.Errorf("invalid version %q", args[1])
			}
			doc, err := a.api.Documents.Restore(cmd.Context(), args[0], version)
			if err != nil {
				return fmt.Errorf("restore version: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s, now v%d\n", idStyle.Render(doc.ID), doc.Version)
			return nil
		},
	}
}

// newDocEditCmd appends lines read from stdin as paragraphs and autosaves
// after each pause.
func newDocEditCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <doc-id>",
		Short: "Append paragraphs from stdin with autosave",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docID := args[0]
			ctx := cmd.Context()
			doc, err := a.api.Documents.Get(ctx, docID)
			if err != nil {
				return fmt.Errorf("get document: %w", err)
			}

			cache, err := drafts.Open(a.cfg.Autosave.DraftsDB)
			if err != nil {
				return err
			}
			defer func() { _ = cache.Close() }()

			out := &lockedWriter{w: cmd.OutOrStdout()}
			saver := autosave.New(
				func(ctx context.Context, id, html string) error {
					saved, err := a.api.Documents.SaveContent(ctx, id, html)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, statusStyle.Render(fmt.Sprintf("saved v%d", saved.Version)))
					return nil
				},
				autosave.WithDelay(a.cfg.Autosave.Delay),
				autosave.WithDrafts(cache),
				autosave.WithLogger(a.log),
				autosave.WithErrorHandler(func(id string, err error) {
					fmt.Fprintln(out, errorStyle.Render("autosave failed, draft kept: "+err.Error()))
				}),
			)
			defer saver.Close()

			content := doc.Content
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				content += "<p>" + escapeText(line) + "</p>"
				if err := saver.Edit(docID, content); err != nil {
					return err
				}
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			return saver.Flush(ctx)
		},
	}
}

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeText(s string) string {
	return textEscaper.Replace(s)
}
