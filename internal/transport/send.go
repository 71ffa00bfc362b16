package transport

import (
	"context"
	"errors"
	"strconv"

	"github.com/coachpo/aevo/errs"
	"github.com/coachpo/aevo/internal/telemetry"
)

// MaxSendAttempts bounds writes per Send: the first attempt plus one retry
// after a reconnect.
const MaxSendAttempts = 2

var errNoLink = errors.New("no published connection")

// Send writes one frame. Concurrent sends are serialized. A closed-class
// failure triggers one reconnect and one retry; any other failure is returned
// immediately.
func (m *Manager) Send(ctx context.Context, frame []byte) error {
	var lastErr error
	for attempt := 1; attempt <= MaxSendAttempts; attempt++ {
		gen, err := m.write(ctx, frame)
		if err == nil {
			m.metrics.RecordSend(ctx, telemetry.ResultSuccess)
			return nil
		}
		if errors.Is(err, errNoLink) {
			return errs.New("transport.send", errs.CodeNotConnected,
				errs.WithMessage("connection not established"))
		}
		if !IsClosed(err) {
			m.metrics.RecordSend(ctx, telemetry.ResultError)
			return errs.New("transport.send", errs.CodeTransport,
				errs.WithMessage("write failed"),
				errs.WithCause(err))
		}

		m.metrics.RecordSend(ctx, telemetry.ResultClosed)
		m.markDown(gen)
		lastErr = err
		m.logger.Warn().Err(err).Int("attempt", attempt).Uint64("generation", gen).Msg("send hit closed connection")
		if attempt == MaxSendAttempts {
			break
		}
		if err := m.Reconnect(ctx, gen); err != nil {
			return err
		}
	}
	return errs.New("transport.send", errs.CodeExhausted,
		errs.WithMessage("failed after maximum attempts"),
		errs.WithCanonicalCode(errs.CanonicalConnectionClosed),
		errs.WithField("attempts", strconv.Itoa(MaxSendAttempts)),
		errs.WithCause(lastErr))
}

func (m *Manager) write(ctx context.Context, frame []byte) (uint64, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	l := m.writer
	if l == nil {
		return 0, errNoLink
	}
	if err := l.conn.Write(ctx, frame); err != nil {
		return l.gen, err
	}
	return l.gen, nil
}
