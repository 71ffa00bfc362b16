package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/coachpo/aevo/pkg/wire"
)

type fakeConn struct {
	mu        sync.Mutex
	attempts  int
	written   [][]byte
	writeErrs []error
	readErrs  []error

	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn(writeErrs ...error) *fakeConn {
	return &fakeConn{
		writeErrs: writeErrs,
		frames:    make(chan []byte, 16),
		closed:    make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	if len(c.readErrs) > 0 {
		err := c.readErrs[0]
		c.readErrs = c.readErrs[1:]
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()
	select {
	case f := <-c.frames:
		return f, nil
	case <-c.closed:
		return nil, fmt.Errorf("read: %w", ErrClosed)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(_ context.Context, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if len(c.writeErrs) > 0 {
		err := c.writeErrs[0]
		c.writeErrs = c.writeErrs[1:]
		if err != nil {
			return err
		}
	}
	select {
	case <-c.closed:
		return fmt.Errorf("write: %w", ErrClosed)
	default:
	}
	c.written = append(c.written, append([]byte(nil), frame...))
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) writeAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *fakeConn) frameLog() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fakeDialer hands out scripted connections, then fresh healthy ones.
type fakeDialer struct {
	mu      sync.Mutex
	dials   atomic.Int32
	script  []*fakeConn
	dialErr func(n int) error
	issued  []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (Conn, error) {
	n := int(d.dials.Add(1))
	if d.dialErr != nil {
		if err := d.dialErr(n); err != nil {
			return nil, err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var conn *fakeConn
	if len(d.script) > 0 {
		conn = d.script[0]
		d.script = d.script[1:]
	} else {
		conn = newFakeConn()
	}
	d.issued = append(d.issued, conn)
	return conn, nil
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.issued) {
		return nil
	}
	return d.issued[i]
}

func (d *fakeDialer) totalWriteAttempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	total := 0
	for _, c := range d.issued {
		total += c.writeAttempts()
	}
	return total
}

type collectSink struct {
	mu    sync.Mutex
	resps []wire.Response
	err   error
}

func (s *collectSink) Deliver(_ context.Context, resp wire.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.resps = append(s.resps, resp)
	return nil
}

func (s *collectSink) received() []wire.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.Response, len(s.resps))
	copy(out, s.resps)
	return out
}

var errBoom = errors.New("boom")
