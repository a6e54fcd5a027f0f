// Package sse provides a Server-Sent-Events transport: frames are read from
// a long-lived event stream and written with one POST per frame.
package sse

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/omochice/quill/internal/transport"
)

const maxEventSize = 1 << 20

// Conn is a transport.Conn backed by an event stream.
type Conn struct {
	base       string
	token      string
	httpClient *http.Client
	body       io.ReadCloser
	scanner    *bufio.Scanner
	cancel     context.CancelFunc
	remoteAddr string

	closeOnce sync.Once
}

var _ transport.Conn = (*Conn)(nil)

// Read implements transport.Conn. It returns the data of the next event;
// comment lines and events without data are skipped.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, c.cancel)
	defer stop()

	var data []string
	hasData := false
	for c.scanner.Scan() {
		line := c.scanner.Text()
		if line == "" {
			if hasData {
				return []byte(strings.Join(data, "\n")), nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		if field == "data" {
			data = append(data, value)
			hasData = true
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event stream: %w", err)
	}
	if hasData {
		return []byte(strings.Join(data, "\n")), nil
	}
	return nil, io.EOF
}

// Write implements transport.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/messages", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("failed to send frame: status %d", resp.StatusCode)
	}
	return nil
}

// Close implements transport.Conn.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.body.Close()
	})
	return nil
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

// Dialer opens SSE connections. The URL passed to Dial is the session base;
// events are read from <base>/events and frames posted to <base>/messages.
type Dialer struct {
	Token      string
	HTTPClient *http.Client
}

var _ transport.Dialer = (*Dialer)(nil)

// ErrNotEventStream is returned when the server answers with a content type
// other than text/event-stream.
var ErrNotEventStream = errors.New("response is not an event stream")

// Dial implements transport.Dialer. ctx bounds only the handshake; the
// stream stays open until Close.
func (d *Dialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	client := d.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	base := strings.TrimSuffix(url, "/")

	streamCtx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, base+"/events", nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if d.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.Token)
	}

	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("failed to connect to server: status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("failed to connect to server: %w (%q)", ErrNotEventStream, ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	return &Conn{
		base:       base,
		token:      d.Token,
		httpClient: client,
		body:       resp.Body,
		scanner:    scanner,
		cancel:     cancel,
		remoteAddr: req.URL.Host,
	}, nil
}
