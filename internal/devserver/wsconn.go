package devserver

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/omochice/quill/internal/transport"
)

// wsConn adapts a server-side gobwas/ws connection to transport.Conn.
type wsConn struct {
	conn       net.Conn
	remoteAddr string

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

var _ transport.Conn = (*wsConn)(nil)

func newWSConn(conn net.Conn) *wsConn {
	c := &wsConn{conn: conn}
	if addr := conn.RemoteAddr(); addr != nil {
		c.remoteAddr = addr.String()
	}
	return c
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	rw := struct {
		io.Reader
		io.Writer
	}{c.conn, wsWriter{c}}

	data, _, err := wsutil.ReadClientData(rw)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var closed wsutil.ClosedError
		if errors.As(err, &closed) && closed.Code == ws.StatusNormalClosure {
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return wsutil.WriteServerText(c.conn, data)
}

// Close sends a normal-closure frame and closes the socket.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.wmu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = wsutil.WriteServerMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
		c.wmu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// abort closes the socket without a close frame.
func (c *wsConn) abort() {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
}

func (c *wsConn) RemoteAddr() string {
	return c.remoteAddr
}

type wsWriter struct {
	c *wsConn
}

func (w wsWriter) Write(p []byte) (int, error) {
	w.c.wmu.Lock()
	defer w.c.wmu.Unlock()
	return w.c.conn.Write(p)
}
