package aevo

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/coachpo/aevo/internal/transport"
	"github.com/coachpo/aevo/pkg/wire"
)

// ErrConsumerGone is reported when a response is delivered to a stopped Inbox.
var ErrConsumerGone = transport.ErrConsumerGone

// Inbox is the consumer queue fed by Run. Delivery blocks while the queue is
// full, so a slow consumer applies backpressure to the receive loop.
//
// C is closed when Run returns, after any buffered responses, so consumers may
// range over it.
type Inbox struct {
	C <-chan wire.Response

	ch       chan wire.Response
	done     chan struct{}
	once     sync.Once
	attached atomic.Bool
	finished atomic.Bool
}

// NewInbox creates an Inbox buffering up to size responses.
func NewInbox(size int) *Inbox {
	if size < 0 {
		size = 0
	}
	ch := make(chan wire.Response, size)
	return &Inbox{C: ch, ch: ch, done: make(chan struct{})}
}

// Deliver implements the receive loop sink. Only the loop feeding the inbox
// calls it.
func (i *Inbox) Deliver(ctx context.Context, resp wire.Response) error {
	if i.finished.Load() {
		return ErrConsumerGone
	}
	select {
	case <-i.done:
		return ErrConsumerGone
	default:
	}
	select {
	case i.ch <- resp:
		return nil
	case <-i.done:
		return ErrConsumerGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop tells the receive loop that nobody reads C any more. Later responses
// are dropped.
func (i *Inbox) Stop() {
	i.once.Do(func() { close(i.done) })
}

// Done is closed once Stop has been called.
func (i *Inbox) Done() <-chan struct{} { return i.done }

// attach claims the inbox for one receive loop.
func (i *Inbox) attach() bool { return i.attached.CompareAndSwap(false, true) }

// finish closes C once the receive loop has returned.
func (i *Inbox) finish() {
	if i.finished.CompareAndSwap(false, true) {
		close(i.ch)
	}
}
