package aevo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/aevo/internal/transport"
	"github.com/coachpo/aevo/pkg/env"
)

const (
	testKey    = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testWallet = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
)

var testNow = time.Unix(1700000000, 0)

func fullCredentials() Credentials {
	return Credentials{
		SigningKey:    testKey,
		WalletAddress: testWallet,
		APIKey:        "key",
		APISecret:     "secret",
	}
}

type memConn struct {
	mu      sync.Mutex
	written [][]byte

	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newMemConn() *memConn {
	return &memConn{inbound: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *memConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case f := <-c.inbound:
		return f, nil
	case <-c.closed:
		return nil, fmt.Errorf("read: %w", transport.ErrClosed)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *memConn) Write(_ context.Context, frame []byte) error {
	select {
	case <-c.closed:
		return fmt.Errorf("write: %w", transport.ErrClosed)
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), frame...))
	return nil
}

func (c *memConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *memConn) frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

// memDialer hands out conn first and a fresh memConn on every later dial.
type memDialer struct {
	dials atomic.Int32
	conn  *memConn

	mu    sync.Mutex
	later []*memConn
}

func (d *memDialer) Dial(context.Context, string) (Conn, error) {
	if d.dials.Add(1) == 1 {
		return d.conn, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	conn := newMemConn()
	d.later = append(d.later, conn)
	return conn, nil
}

// redialed returns the i-th connection dialed after the first, or nil.
func (d *memDialer) redialed(i int) *memConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.later) {
		return nil
	}
	return d.later[i]
}

func newTestClient(t *testing.T, creds Credentials, opts ...Option) (*Client, *memDialer) {
	t.Helper()
	dialer := &memDialer{conn: newMemConn()}
	base := []Option{
		WithDialer(dialer),
		WithClock(func() time.Time { return testNow }),
		WithSaltSource(func() (uint64, error) { return 7, nil }),
		WithRateLimit(0, 0),
	}
	c, err := New(creds, env.Staging, append(base, opts...)...)
	require.NoError(t, err)
	return c, dialer
}

// restServer counts requests and routes them to handler.
type restServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newRESTServer(t *testing.T, handler http.HandlerFunc) *restServer {
	t.Helper()
	rs := &restServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(rs.Close)
	return rs
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func decodeFrame(t *testing.T, frame []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(frame, &out))
	return out
}
