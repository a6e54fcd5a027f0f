package stream_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/quill/internal/stream"
	"github.com/omochice/quill/pkg/protocol"
)

type streamCallbacks struct {
	r *recorder
}

func (s streamCallbacks) build() stream.Callbacks {
	r := s.r
	return stream.Callbacks{
		OnOpen: func() {
			r.mu.Lock()
			r.opens++
			r.mu.Unlock()
		},
		OnClose: func(err error) {
			r.mu.Lock()
			r.closes = append(r.closes, err)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
		OnMessage: func(env protocol.Envelope) {
			r.mu.Lock()
			r.messages = append(r.messages, env.Type.String()+":"+env.Content)
			r.mu.Unlock()
		},
		OnReconnectAttempt: func(attempt int) {
			r.mu.Lock()
			r.attempts = append(r.attempts, attempt)
			r.mu.Unlock()
		},
		OnReconnectExhausted: func() {
			r.mu.Lock()
			r.exhausted++
			r.mu.Unlock()
		},
	}
}

func newTestClient(t *testing.T, d *fakeDialer, mutate func(*stream.Options)) (*stream.Client, *recorder) {
	t.Helper()
	opts := stream.DefaultOptions()
	opts.BaseURL = "ws://backend/ws"
	opts.SessionID = "sess-1"
	opts.Dialer = d
	opts.ReconnectInterval = 10 * time.Millisecond
	opts.HeartbeatInterval = stream.NoHeartbeat
	if mutate != nil {
		mutate(&opts)
	}
	rec := &recorder{}
	c := stream.New(opts, rec.callbacks().build())
	t.Cleanup(c.Close)
	return c, rec
}

func waitConnected(t *testing.T, c *stream.Client) {
	t.Helper()
	require.Eventually(t, c.IsConnected, time.Second, 5*time.Millisecond)
}

func TestClient_ConnectAndDisconnect(t *testing.T) {
	d := &fakeDialer{}
	c, rec := newTestClient(t, d, nil)

	assert.Equal(t, stream.StateDisconnected, c.State())
	assert.Equal(t, "ws://backend/ws/sess-1", c.URL())

	c.Connect()
	waitConnected(t, c)
	require.Eventually(t, func() bool { return rec.openCount() == 1 }, time.Second, 5*time.Millisecond)

	c.Disconnect()
	assert.Equal(t, stream.StateDisconnected, c.State())
	assert.True(t, d.last().isClosed())
	require.Eventually(t, func() bool { return rec.closeCount() == 1 }, time.Second, 5*time.Millisecond)

	// idempotent
	c.Disconnect()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.closeCount())
}

func TestClient_ConnectIsIdempotent(t *testing.T) {
	d := &fakeDialer{}
	c, _ := newTestClient(t, d, nil)

	c.Connect()
	c.Connect()
	waitConnected(t, c)
	c.Connect()

	assert.Equal(t, 1, d.dialCount())
}

func TestClient_ReconnectExhausted(t *testing.T) {
	d := &fakeDialer{failing: true}
	c, rec := newTestClient(t, d, func(o *stream.Options) {
		o.MaxReconnectAttempts = 2
		o.ReconnectInterval = 10 * time.Millisecond
	})

	c.Connect()

	require.Eventually(t, func() bool { return rec.exhaustedCount() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, []int{1, 2}, rec.snapshotAttempts())
	assert.Equal(t, 1, rec.exhaustedCount())
	assert.Equal(t, 3, d.dialCount(), "initial dial plus two reconnects")
	assert.Equal(t, stream.StateDisconnected, c.State())
}

func TestClient_DisconnectThenConnectLeavesOneTransport(t *testing.T) {
	d := &fakeDialer{}
	c, _ := newTestClient(t, d, nil)

	c.Connect()
	waitConnected(t, c)

	for i := 0; i < 5; i++ {
		c.Disconnect()
		c.Connect()
	}
	waitConnected(t, c)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, d.live())
}

func TestClient_DisconnectDuringDialClosesLateConn(t *testing.T) {
	gate := make(chan struct{})
	inner := &fakeDialer{}
	var once sync.Once
	slow := dialerFunc(func() {
		once.Do(func() { <-gate })
	}, inner)

	opts := stream.DefaultOptions()
	opts.BaseURL = "ws://backend/ws"
	opts.Dialer = slow
	opts.HeartbeatInterval = stream.NoHeartbeat
	c := stream.New(opts, stream.Callbacks{})
	defer c.Close()

	c.Connect()
	assert.Equal(t, stream.StateConnecting, c.State())
	c.Disconnect()
	close(gate)

	require.Eventually(t, func() bool {
		conn := inner.last()
		return conn != nil && conn.isClosed()
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, stream.StateDisconnected, c.State())
}

func TestClient_DisconnectCancelsPendingReconnect(t *testing.T) {
	d := &fakeDialer{failing: true}
	c, rec := newTestClient(t, d, func(o *stream.Options) {
		o.ReconnectInterval = 50 * time.Millisecond
	})

	c.Connect()
	require.Eventually(t, func() bool { return rec.errorCount() == 1 }, time.Second, 5*time.Millisecond)
	c.Disconnect()

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 1, d.dialCount())
	assert.Empty(t, rec.snapshotAttempts())
}

func TestClient_ReconnectsAfterUnexpectedClose(t *testing.T) {
	d := &fakeDialer{}
	c, rec := newTestClient(t, d, nil)

	c.Connect()
	waitConnected(t, c)
	first := d.last()

	first.fail <- errRefused

	require.Eventually(t, func() bool { return d.dialCount() == 2 && c.IsConnected() }, time.Second, 5*time.Millisecond)
	assert.True(t, first.isClosed())
	assert.Equal(t, 0, c.Attempts(), "attempts reset after a successful reconnect")
	require.Eventually(t, func() bool {
		attempts := rec.snapshotAttempts()
		return len(attempts) == 1 && attempts[0] == 1
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return rec.openCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestClient_SendWhileDisconnected(t *testing.T) {
	d := &fakeDialer{}
	c, rec := newTestClient(t, d, nil)

	assert.NotPanics(t, func() {
		assert.False(t, c.Send("hello"))
		assert.False(t, c.SendRaw(map[string]any{"type": "ping"}))
		assert.False(t, c.ClearHistory())
	})
	assert.Equal(t, 0, d.dialCount())
	assert.Equal(t, 0, rec.errorCount())
}

func TestClient_SendWritesMessageEnvelope(t *testing.T) {
	d := &fakeDialer{}
	c, _ := newTestClient(t, d, nil)

	c.Connect()
	waitConnected(t, c)

	require.True(t, c.Send("hello"))
	require.True(t, c.ClearHistory())
	require.True(t, c.SendRaw(map[string]any{"type": "ping", "n": 1}))

	writes := d.last().writes()
	require.Len(t, writes, 3)

	var msg protocol.Envelope
	require.NoError(t, msg.Decode(writes[0]))
	assert.Equal(t, protocol.KindMessage, msg.Type)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "sess-1", msg.SessionID)

	var clear protocol.Envelope
	require.NoError(t, clear.Decode(writes[1]))
	assert.Equal(t, protocol.KindClearHistory, clear.Type)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(writes[2], &raw))
	assert.Equal(t, "ping", raw["type"])
}

func TestClient_SendRawRejectsUnencodable(t *testing.T) {
	d := &fakeDialer{}
	c, _ := newTestClient(t, d, nil)

	c.Connect()
	waitConnected(t, c)

	assert.False(t, c.SendRaw(map[string]any{"fn": func() {}}))
	assert.Empty(t, d.last().writes())
}

func TestClient_DeliversFramesInOrder(t *testing.T) {
	d := &fakeDialer{}
	c, rec := newTestClient(t, d, nil)

	c.Connect()
	waitConnected(t, c)
	conn := d.last()

	conn.frames <- []byte(`{"type":"connection","content":"welcome"}`)
	conn.frames <- []byte(`not json at all`)
	conn.frames <- []byte(`{"type":"pong"}`)
	conn.frames <- []byte(`{"type":"stream","content":"Hel"}`)
	conn.frames <- []byte(`{"type":"future_kind","content":"?"}`)
	conn.frames <- []byte(`{"type":"stream","content":"lo"}`)
	conn.frames <- []byte(`{"type":"complete"}`)

	want := []string{
		"connection:welcome",
		"stream:Hel",
		"future_kind:?",
		"stream:lo",
		"complete:",
	}
	require.Eventually(t, func() bool { return len(rec.received()) == len(want) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, rec.received())
	assert.True(t, c.IsConnected(), "malformed frames must not drop the connection")
}

func TestClient_Heartbeat(t *testing.T) {
	d := &fakeDialer{}
	c, _ := newTestClient(t, d, func(o *stream.Options) {
		o.HeartbeatInterval = 15 * time.Millisecond
	})

	c.Connect()
	waitConnected(t, c)
	conn := d.last()

	require.Eventually(t, func() bool { return len(conn.writes()) >= 2 }, time.Second, 5*time.Millisecond)
	var ping protocol.Envelope
	require.NoError(t, ping.Decode(conn.writes()[0]))
	assert.Equal(t, protocol.KindPing, ping.Type)

	c.Disconnect()
	n := len(conn.writes())
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, n, len(conn.writes()), "heartbeat must stop after disconnect")
}

func TestClient_ExponentialBackoffDelaysAttempts(t *testing.T) {
	d := &fakeDialer{failing: true}
	c, rec := newTestClient(t, d, func(o *stream.Options) {
		o.MaxReconnectAttempts = 3
		o.Backoff = &stream.ExponentialBackoff{Initial: 10 * time.Millisecond, Multiplier: 2, Max: time.Second}
	})

	start := time.Now()
	c.Connect()
	require.Eventually(t, func() bool { return rec.exhaustedCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	// 10ms + 20ms + 40ms
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
	assert.Equal(t, []int{1, 2, 3}, rec.snapshotAttempts())
}

func TestClient_ManualConnectAfterExhaustion(t *testing.T) {
	d := &fakeDialer{failing: true}
	c, rec := newTestClient(t, d, func(o *stream.Options) {
		o.MaxReconnectAttempts = 1
	})

	c.Connect()
	require.Eventually(t, func() bool { return rec.exhaustedCount() == 1 }, time.Second, 5*time.Millisecond)

	d.setFailing(false)
	c.Connect()
	waitConnected(t, c)
	assert.Equal(t, 0, c.Attempts())
}

func TestClient_CloseStopsEverything(t *testing.T) {
	d := &fakeDialer{}
	c, _ := newTestClient(t, d, nil)

	c.Connect()
	waitConnected(t, c)
	c.Close()

	assert.Equal(t, stream.StateDisconnected, c.State())
	c.Connect()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, d.dialCount(), "closed client must not reconnect")
}

func TestClient_ZeroMaxAttemptsUsesDefault(t *testing.T) {
	d := &fakeDialer{failing: true}
	c, rec := newTestClient(t, d, func(o *stream.Options) {
		o.MaxReconnectAttempts = 0
		o.ReconnectInterval = time.Millisecond
	})

	c.Connect()

	require.Eventually(t, func() bool { return rec.exhaustedCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, rec.snapshotAttempts(), stream.DefaultMaxReconnectAttempts)
}

func TestClient_NoReconnect(t *testing.T) {
	d := &fakeDialer{failing: true}
	c, rec := newTestClient(t, d, func(o *stream.Options) {
		o.MaxReconnectAttempts = stream.NoReconnect
	})

	c.Connect()

	require.Eventually(t, func() bool { return rec.exhaustedCount() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, rec.snapshotAttempts())
	assert.Equal(t, 1, d.dialCount())
}
