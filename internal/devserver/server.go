// Package devserver is a small conversational backend for local development
// and tests. It speaks the envelope protocol over WebSocket and SSE.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/omochice/quill/pkg/protocol"
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"

	writeTimeout   = 10 * time.Second
	maxMessageSize = 1 << 20
)

// Options configures a Server.
type Options struct {
	// Addr is the listen address, e.g. ":8080" or "127.0.0.1:0".
	Addr string
	// Responder answers messages. Defaults to EchoResponder.
	Responder Responder
	// ChunkDelay is the pause between streamed chunks.
	ChunkDelay time.Duration
	// Token, when set, must be presented as a bearer token.
	Token  string
	Logger *slog.Logger
}

// Server serves /ws/{session}, /sse/{session}/events and
// /sse/{session}/messages.
type Server struct {
	opts     Options
	hub      *Hub
	log      *slog.Logger
	listener net.Listener
	server   *http.Server

	ctx    context.Context
	cancel context.CancelFunc

	// trackMu makes wg.Add and Shutdown's stopping mutually exclusive.
	trackMu  sync.Mutex
	stopping bool
	wg       sync.WaitGroup
}

// New creates a Server. It does not listen.
func New(opts Options) *Server {
	if opts.Responder == nil {
		opts.Responder = EchoResponder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:   opts,
		hub:    NewHub(),
		log:    opts.Logger,
		ctx:    ctx,
		cancel: cancel,
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{session}", s.handleWebSocket)
	mux.HandleFunc("GET /sse/{session}/events", s.handleEvents)
	mux.HandleFunc("POST /sse/{session}/messages", s.handleMessages)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

// Hub returns the session registry.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Listen binds the listen address.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener
	s.log.Info("devserver listening", "addr", listener.Addr().String())
	return nil
}

// Serve accepts connections until Shutdown. Listen must be called first.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Shutdown closes all client streams, stops replies in progress and waits
// for connection goroutines to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.trackMu.Lock()
	s.stopping = true
	s.trackMu.Unlock()

	s.cancel()
	s.hub.CloseAll()
	err := s.server.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// track adds n goroutines to the shutdown wait group. It reports false once
// Shutdown has started, in which case the caller must not start them.
func (s *Server) track(n int) bool {
	s.trackMu.Lock()
	defer s.trackMu.Unlock()
	if s.stopping {
		return false
	}
	s.wg.Add(n)
	return true
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	return s.hub.ClientCount()
}

func (s *Server) authorized(r *http.Request) bool {
	if s.opts.Token == "" {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+s.opts.Token
}

func envelope(kind protocol.Kind, content, sessionID string) []byte {
	env := protocol.Envelope{
		Type:      kind,
		Content:   content,
		Timestamp: protocol.Now(),
		SessionID: sessionID,
	}
	data, _ := env.Encode()
	return data
}

// handleFrame applies one inbound frame. Direct replies go to sender, or to
// the whole session when sender is nil.
func (s *Server) handleFrame(sessionID string, sender *Client, data []byte) {
	reply := func(b []byte) {
		if sender != nil {
			sender.send(b)
			return
		}
		s.hub.Broadcast(sessionID, b)
	}

	var env protocol.Envelope
	if err := env.Decode(data); err != nil {
		s.log.Warn("invalid frame", "session_id", sessionID, "error", err)
		reply(envelope(protocol.KindError, "invalid message format", sessionID))
		return
	}

	switch env.Type {
	case protocol.KindPing:
		reply(envelope(protocol.KindPong, "", sessionID))
	case protocol.KindClearHistory:
		s.hub.ClearHistory(sessionID)
		s.log.Info("history cleared", "session_id", sessionID)
		s.hub.Broadcast(sessionID, envelope(protocol.KindHistoryCleared, "", sessionID))
	case protocol.KindMessage:
		if strings.TrimSpace(env.Content) == "" {
			reply(envelope(protocol.KindError, "message is empty", sessionID))
			return
		}
		if !s.track(1) {
			return
		}
		go s.respond(sessionID, env.Content)
	default:
		reply(envelope(protocol.KindError, "unsupported message type: "+env.Type.String(), sessionID))
	}
}

func (s *Server) respond(sessionID, content string) {
	defer s.wg.Done()
	unlock := s.hub.lockTurn(sessionID)
	defer unlock()

	s.hub.Append(sessionID, Message{Role: roleUser, Content: content})
	s.hub.Broadcast(sessionID, envelope(protocol.KindProcessingStart, "", sessionID))

	chunks, err := s.opts.Responder.Respond(s.ctx, s.hub.History(sessionID), content)
	if err != nil {
		s.log.Warn("responder failed", "session_id", sessionID, "error", err)
		s.hub.Broadcast(sessionID, envelope(protocol.KindError, err.Error(), sessionID))
		return
	}

	var reply strings.Builder
	for i, chunk := range chunks {
		if i > 0 && s.opts.ChunkDelay > 0 {
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(s.opts.ChunkDelay):
			}
		}
		s.hub.Broadcast(sessionID, envelope(protocol.KindStream, chunk, sessionID))
		reply.WriteString(chunk)
	}
	s.hub.Append(sessionID, Message{Role: roleAssistant, Content: reply.String()})
	s.hub.Broadcast(sessionID, envelope(protocol.KindComplete, "", sessionID))
}
