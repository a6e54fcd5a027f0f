package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/omochice/quill/internal/stream"
	"github.com/omochice/quill/internal/transport/sse"
	"github.com/omochice/quill/internal/transport/ws"
)

const (
	connectWait  = 15 * time.Second
	replyTimeout = 2 * time.Minute
)

func newChatCmd(a *app) *cobra.Command {
	var sessionID, export string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant over a WebSocket session",
		Long: `Open an interactive session. Type a message and press enter.

Commands: /clear drops the session history, /cancel stops waiting for a
reply, /turns toggles the turn summary, /quit leaves.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := a.tokens.Token()
			if err != nil {
				return err
			}
			if sessionID == "" {
				sessionID = stream.NewSessionID()
			}
			dialer := &ws.Dialer{Token: token, Timeout: stream.DefaultDialTimeout}
			return runSession(cmd.Context(), sessionConfig{
				Stream:       streamOptions(a.cfg, a.cfg.WSURL, sessionID, dialer, a.log),
				Export:       export,
				ConnectWait:  connectWait,
				ReplyTimeout: replyTimeout,
				Log:          a.log,
			}, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "resume an existing session ID")
	cmd.Flags().StringVar(&export, "export", "", "write the transcript on exit (.json, .yaml or .md)")
	return cmd
}

func newAgentCmd(a *app) *cobra.Command {
	var workID, export string

	cmd := &cobra.Command{
		Use:   "agent <agent-id>",
		Short: "Run an agent session over server-sent events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := a.api.Agents.CreateSession(cmd.Context(), args[0], workID)
			if err != nil {
				return fmt.Errorf("create agent session: %w", err)
			}
			token, err := a.tokens.Token()
			if err != nil {
				return err
			}
			dialer := &sse.Dialer{Token: token}
			return runSession(cmd.Context(), sessionConfig{
				Stream:       streamOptions(a.cfg, a.cfg.SSEURL, sessionID, dialer, a.log),
				Export:       export,
				ConnectWait:  connectWait,
				ReplyTimeout: replyTimeout,
				Log:          a.log,
			}, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&workID, "work", "", "scope the session to a work")
	cmd.Flags().StringVar(&export, "export", "", "write the transcript on exit (.json, .yaml or .md)")
	return cmd
}
