package devserver

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gobwas/ws"

	"github.com/omochice/quill/pkg/protocol"
)

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	sessionID := r.PathValue("session")

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.log.Warn("failed to upgrade connection", "error", err)
		return
	}

	c := newWSConn(conn)
	if !s.track(2) {
		_ = c.Close()
		return
	}
	client := newClient(sessionID)
	s.hub.Register(client)
	s.log.Info("client connected", "transport", "ws", "session_id", sessionID, "remote", c.RemoteAddr())
	client.send(envelope(protocol.KindConnection, "connected to session "+sessionID, sessionID))

	go s.writeWebSocket(c, client)
	go s.readWebSocket(c, client)
}

func (s *Server) writeWebSocket(c *wsConn, client *Client) {
	defer s.wg.Done()
	for {
		select {
		case <-client.done:
			if client.kicked.Load() {
				c.abort()
			} else {
				_ = c.Close()
			}
			return
		case data := <-client.Outgoing:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := c.Write(ctx, data)
			cancel()
			if err != nil {
				s.log.Warn("failed to send to client", "session_id", client.SessionID, "error", err)
				c.abort()
				client.stop(true)
				return
			}
		}
	}
}

func (s *Server) readWebSocket(c *wsConn, client *Client) {
	defer s.wg.Done()
	defer func() {
		s.hub.Unregister(client)
		client.stop(false)
		s.log.Info("client disconnected", "transport", "ws", "session_id", client.SessionID)
	}()

	for {
		data, err := c.Read(context.Background())
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("websocket read ended", "session_id", client.SessionID, "error", err)
			}
			return
		}
		if len(data) > maxMessageSize {
			client.send(envelope(protocol.KindError, "message too large", client.SessionID))
			continue
		}
		s.handleFrame(client.SessionID, client, data)
	}
}
