// Command devserver runs a local conversational backend that answers over
// WebSocket and SSE, for trying the quill client without the real service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/omochice/quill/internal/devserver"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr       string
		chunkDelay time.Duration
		token      string
		verbose    bool
	)
	cmd := &cobra.Command{
		Use:          "devserver",
		Short:        "Run a local echo backend for the streaming session protocol",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			srv := devserver.New(devserver.Options{
				Addr:       addr,
				ChunkDelay: chunkDelay,
				Token:      token,
				Logger:     log,
			})
			if err := srv.Listen(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ws:  ws://%s/ws/<session>\nsse: http://%s/sse/<session>\n", srv.Addr(), srv.Addr())

			ctx := cmd.Context()
			g, ctx := errgroup.WithContext(ctx)
			g.Go(srv.Serve)
			g.Go(func() error {
				<-ctx.Done()
				log.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().DurationVar(&chunkDelay, "chunk-delay", 50*time.Millisecond, "pause between streamed chunks")
	cmd.Flags().StringVar(&token, "token", "", "require this bearer token")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	return cmd
}
