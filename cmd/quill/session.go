package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/omochice/quill/internal/config"
	"github.com/omochice/quill/internal/conversation"
	"github.com/omochice/quill/internal/stream"
	"github.com/omochice/quill/internal/transport"
	"github.com/omochice/quill/internal/uistate"
	"github.com/omochice/quill/pkg/protocol"
)

var (
	errReconnectExhausted = errors.New("gave up reconnecting")
	errSessionEnded       = errors.New("session ended")
)

type sessionConfig struct {
	Stream       stream.Options
	Export       string
	ConnectWait  time.Duration
	ReplyTimeout time.Duration
	Log          *slog.Logger
}

func streamOptions(cfg *config.Config, base, sessionID string, dialer transport.Dialer, log *slog.Logger) stream.Options {
	opts := stream.DefaultOptions()
	opts.BaseURL = base
	opts.SessionID = sessionID
	opts.Dialer = dialer
	opts.Logger = log
	if cfg.Stream.ReconnectInterval > 0 {
		opts.ReconnectInterval = cfg.Stream.ReconnectInterval
	}
	if cfg.Stream.MaxReconnectAttempts > 0 {
		opts.MaxReconnectAttempts = cfg.Stream.MaxReconnectAttempts
	} else {
		opts.MaxReconnectAttempts = stream.NoReconnect
	}
	if cfg.Stream.HeartbeatInterval > 0 {
		opts.HeartbeatInterval = cfg.Stream.HeartbeatInterval
	} else {
		opts.HeartbeatInterval = stream.NoHeartbeat
	}
	if cfg.Stream.ExponentialBackoff {
		opts.Backoff = stream.DefaultExponentialBackoff(opts.ReconnectInterval)
	}
	return opts
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// runSession drives one interactive streaming session until /quit, end of
// input or reconnect exhaustion.
func runSession(ctx context.Context, cfg sessionConfig, in io.Reader, w io.Writer) error {
	out := &lockedWriter{w: w}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	conv := conversation.New(conversation.WithLogger(log))
	ui := uistate.New()
	ui.SetSidebarOpen(false)
	unsubscribe := ui.Subscribe(func(st uistate.State) {
		state := "hidden"
		if st.SidebarOpen {
			state = "shown"
		}
		fmt.Fprintln(out, statusStyle.Render("turn summary "+state))
	})
	defer unsubscribe()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	opened := make(chan struct{}, 1)
	settled := make(chan struct{}, 1)
	answering := false

	client := stream.New(cfg.Stream, stream.Callbacks{
		OnOpen: func() {
			fmt.Fprintln(out, statusStyle.Render("connected to session "+cfg.Stream.SessionID))
			notify(opened)
		},
		OnClose: func(err error) {
			if err != nil {
				fmt.Fprintln(out, statusStyle.Render("connection lost"))
			}
		},
		OnError: func(err error) {
			fmt.Fprintln(out, errorStyle.Render("error: "+err.Error()))
		},
		OnReconnectAttempt: func(attempt int) {
			fmt.Fprintln(out, statusStyle.Render(fmt.Sprintf("reconnecting (attempt %d)", attempt)))
		},
		OnReconnectExhausted: func() {
			cancel(errReconnectExhausted)
		},
		OnMessage: func(env protocol.Envelope) {
			conv.Apply(env)
			switch env.Type {
			case protocol.KindProcessingStart:
				fmt.Fprint(out, assistantStyle.Render("assistant:")+" ")
				answering = true
			case protocol.KindStream:
				if !answering {
					fmt.Fprint(out, assistantStyle.Render("assistant:")+" ")
					answering = true
				}
				fmt.Fprint(out, env.Content)
			case protocol.KindComplete:
				fmt.Fprintln(out)
				answering = false
				if ui.SidebarOpen() {
					printSummary(out, conv.Turns())
				}
				notify(settled)
			case protocol.KindError:
				if answering {
					fmt.Fprintln(out)
				}
				fmt.Fprintln(out, errorStyle.Render("backend error: "+env.Content))
				notify(settled)
			case protocol.KindHistoryCleared:
				fmt.Fprintln(out, statusStyle.Render("history cleared"))
			}
		},
	})
	defer client.Close()
	client.Connect()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-opened:
		case <-gctx.Done():
			return context.Cause(gctx)
		case <-time.After(cfg.ConnectWait):
		}
		if err := inputLoop(gctx, lines, client, conv, ui, settled, out, cfg.ReplyTimeout); err != nil {
			return err
		}
		return errSessionEnded
	})
	g.Go(func() error {
		<-gctx.Done()
		client.Disconnect()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, errSessionEnded) {
		err = nil
	}
	if cause := context.Cause(ctx); errors.Is(cause, errReconnectExhausted) {
		err = cause
	}

	if cfg.Export != "" {
		if exportErr := exportTranscript(cfg.Export, conv.Turns()); exportErr != nil {
			return errors.Join(err, exportErr)
		}
		fmt.Fprintln(out, statusStyle.Render("transcript written to "+cfg.Export))
	}
	return err
}

func inputLoop(ctx context.Context, lines <-chan string, client *stream.Client, conv *conversation.Conversation,
	ui *uistate.Store, settled chan struct{}, out io.Writer, replyTimeout time.Duration) error {
	for {
		var line string
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/quit":
			return nil
		case "/clear":
			if !client.ClearHistory() {
				fmt.Fprintln(out, errorStyle.Render("not connected"))
			}
			continue
		case "/cancel":
			if conv.Cancel() {
				fmt.Fprintln(out)
				fmt.Fprintln(out, statusStyle.Render("stopped waiting for the reply"))
			}
			continue
		case "/turns":
			ui.ToggleSidebar()
			continue
		}

		if conv.HasOpenTurn() {
			fmt.Fprintln(out, statusStyle.Render("assistant is still answering, /cancel to stop waiting"))
			continue
		}
		select {
		case <-settled:
		default:
		}
		if !client.IsConnected() {
			fmt.Fprintln(out, errorStyle.Render("not connected, message not sent"))
			continue
		}
		// the user turn goes in before the reply can start arriving
		if err := conv.SubmitUser(line); err != nil {
			fmt.Fprintln(out, statusStyle.Render(err.Error()))
			continue
		}
		if !client.Send(line) {
			fmt.Fprintln(out, errorStyle.Render("message not sent"))
			continue
		}

		select {
		case <-settled:
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-time.After(replyTimeout):
			fmt.Fprintln(out, statusStyle.Render("no reply yet"))
		}
	}
}

func printSummary(out io.Writer, turns []conversation.Turn) {
	for i, t := range turns {
		content := t.Content
		if runes := []rune(content); len(runes) > 60 {
			content = string(runes[:57]) + "..."
		}
		fmt.Fprintf(out, "  %s %s %s\n", idStyle.Render(fmt.Sprintf("#%d", i+1)), t.Role, content)
	}
}

func exportTranscript(path string, turns []conversation.Turn) error {
	exporter, err := conversation.ExporterFor(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := exporter.Export(f, turns); err != nil {
		_ = f.Close()
		return fmt.Errorf("export transcript: %w", err)
	}
	return f.Close()
}
