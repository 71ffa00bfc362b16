package transport

import (
	"context"
	"errors"
	"strconv"

	"github.com/cenkalti/backoff/v5"

	"github.com/coachpo/aevo/errs"
	"github.com/coachpo/aevo/pkg/wire"
)

const logFrameLimit = 256

// Decoder turns a frame into a response.
type Decoder interface {
	Decode(frame []byte) (wire.Response, error)
}

// Sink receives decoded responses. It returns ErrConsumerGone once its
// consumer has stopped receiving.
type Sink interface {
	Deliver(ctx context.Context, resp wire.Response) error
}

// Run reads frames until ctx is cancelled or the owner closes the Manager.
// Undecodable frames are logged and skipped. A lost connection is replaced
// with exponential backoff; Run fails only once reconnecting has been retried
// for longer than the configured maximum. It returns nil after Close and
// ctx.Err() after cancellation.
func (m *Manager) Run(ctx context.Context, dec Decoder, sink Sink) error {
	if m.snapshotReader() == nil {
		return errs.New("transport.run", errs.CodeNotConnected,
			errs.WithMessage("connection not established"))
	}

	var observed uint64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		l := m.snapshotReader()
		if l == nil {
			if m.shutdown.Load() {
				return nil
			}
			if err := m.heal(ctx, observed); err != nil {
				return err
			}
			continue
		}
		observed = l.gen

		frame, err := l.conn.Read(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if m.shutdown.Load() {
				return nil
			}
			if IsClosed(err) {
				m.markDown(l.gen)
				m.logger.Warn().Err(err).Str("link", l.id.String()).Msg("connection lost, reconnecting")
				if err := m.heal(ctx, l.gen); err != nil {
					return err
				}
				continue
			}
			m.logger.Warn().Err(err).Str("link", l.id.String()).Msg("read failed")
			continue
		}
		m.metrics.RecordFrame(ctx)

		resp, err := dec.Decode(frame)
		if err != nil {
			m.metrics.RecordDecodeFailure(ctx)
			m.logger.Warn().Err(err).Str("frame", truncate(frame)).Msg("dropping undecodable frame")
			continue
		}
		if err := sink.Deliver(ctx, resp); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, ErrConsumerGone) {
				m.metrics.RecordDropped(ctx)
			}
			m.logger.Warn().Err(err).Str("kind", string(resp.Kind)).Msg("delivery failed")
		}
	}
}

// heal reconnects the connection observed at generation observed, retrying
// with exponential backoff.
func (m *Manager) heal(ctx context.Context, observed uint64) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = m.initialInterval
	policy.MaxInterval = m.maxInterval

	attempt := 0
	operation := func() (struct{}, error) {
		attempt++
		err := m.Reconnect(ctx, observed)
		if err == nil {
			return struct{}{}, nil
		}
		if m.shutdown.Load() {
			return struct{}{}, backoff.Permanent(err)
		}
		m.logger.Warn().Err(err).Int("attempt", attempt).Msg("reconnect failed")
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(m.maxElapsed))
	if err == nil || m.shutdown.Load() {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return errs.New("transport.run", errs.CodeExhausted,
		errs.WithMessage("reconnect retries exhausted"),
		errs.WithField("attempts", strconv.Itoa(attempt)),
		errs.WithCause(err))
}

func truncate(frame []byte) string {
	if len(frame) <= logFrameLimit {
		return string(frame)
	}
	return string(frame[:logFrameLimit]) + "..."
}
