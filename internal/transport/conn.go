// Package transport owns the streaming connection to the exchange gateway:
// dialing, authentication, serialized sends with a single reconnect-and-retry,
// and a self-healing receive loop.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/coder/websocket"
)

// ErrClosed marks errors that mean the connection is gone and must be replaced.
var ErrClosed = errors.New("transport: connection closed")

// ErrConsumerGone is returned by a Sink whose consumer has stopped receiving.
var ErrConsumerGone = errors.New("transport: consumer gone")

const defaultReadLimit = 2 * 1024 * 1024

// Conn is one duplex text-frame connection. Implementations wrap
// connection-level failures with ErrClosed.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, frame []byte) error
	Close() error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) { return f(ctx, url) }

// WebsocketDialer dials with coder/websocket.
type WebsocketDialer struct {
	HTTPClient *http.Client
	Header     http.Header
	ReadLimit  int64
}

// Dial implements Dialer.
func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	opts := &websocket.DialOptions{HTTPClient: d.HTTPClient, HTTPHeader: d.Header}
	conn, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	conn.SetReadLimit(limit)
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, classify(ctx, "read", err)
	}
	return data, nil
}

func (c *wsConn) Write(ctx context.Context, frame []byte) error {
	if err := c.conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return classify(ctx, "write", err)
	}
	return nil
}

func (c *wsConn) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "client closing")
	if err == nil || errors.Is(err, net.ErrClosed) || websocket.CloseStatus(err) != -1 {
		return nil
	}
	return err
}

// classify maps a coder/websocket failure onto ErrClosed. coder/websocket
// tears the connection down on any failed read or write, so everything except
// caller cancellation is closed-class.
func classify(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrClosed, err)
}

// IsClosed reports whether err means the connection is gone, either because
// it wraps ErrClosed or because it is a raw close, EOF or closed-socket error.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrClosed) ||
		websocket.CloseStatus(err) != -1 ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF)
}
