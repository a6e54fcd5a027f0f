package devserver

import (
	"fmt"
	"io"
	"net/http"

	"github.com/omochice/quill/pkg/protocol"
)

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	sessionID := r.PathValue("session")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := newClient(sessionID)
	s.hub.Register(client)
	s.log.Info("client connected", "transport", "sse", "session_id", sessionID, "remote", r.RemoteAddr)
	defer func() {
		s.hub.Unregister(client)
		client.stop(false)
		s.log.Info("client disconnected", "transport", "sse", "session_id", sessionID)
	}()

	client.send(envelope(protocol.KindConnection, "connected to session "+sessionID, sessionID))

	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.done:
			return
		case data := <-client.Outgoing:
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	sessionID := r.PathValue("session")

	data, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize+1))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if len(data) > maxMessageSize {
		http.Error(w, "message too large", http.StatusRequestEntityTooLarge)
		return
	}

	s.handleFrame(sessionID, nil, data)
	w.WriteHeader(http.StatusAccepted)
}
