package transport

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coachpo/aevo/errs"
	"github.com/coachpo/aevo/internal/telemetry"
)

const (
	defaultReconnectInitialInterval = 250 * time.Millisecond
	defaultReconnectMaxInterval     = 10 * time.Second
	defaultReconnectMaxElapsed      = 2 * time.Minute
)

// Config wires a Manager.
type Config struct {
	URL    string
	Dialer Dialer
	// AuthFrame, when set, is written once on every new connection before it
	// is published to senders and readers.
	AuthFrame []byte
	// Replay, when set, supplies frames written after the auth frame on every
	// new connection, such as subscriptions the previous connection carried.
	Replay  func() [][]byte
	Logger  zerolog.Logger
	Metrics *telemetry.TransportMetrics

	ReconnectInitialInterval time.Duration
	ReconnectMaxInterval     time.Duration
	// ReconnectMaxElapsed bounds how long the receive loop keeps trying to
	// re-establish a lost connection before it gives up.
	ReconnectMaxElapsed time.Duration
}

// link is one established connection. Both slots point at the same link.
type link struct {
	conn Conn
	gen  uint64
	id   uuid.UUID
}

// Manager owns the shared streaming connection.
//
// Lock order is reconnectMu, then writeMu, then readMu. Blocking reads run on
// a snapshot of the reader slot without holding readMu, so a stalled read
// never blocks a reconnect; closing the old connection unblocks it.
type Manager struct {
	url     string
	dialer  Dialer
	auth    []byte
	replay  func() [][]byte
	logger  zerolog.Logger
	metrics *telemetry.TransportMetrics

	initialInterval time.Duration
	maxInterval     time.Duration
	maxElapsed      time.Duration

	reconnectMu sync.Mutex

	writeMu sync.Mutex
	writer  *link

	readMu sync.Mutex
	reader *link

	generation atomic.Uint64
	state      atomic.Int32
	shutdown   atomic.Bool
}

// New validates cfg and returns a disconnected Manager.
func New(cfg Config) (*Manager, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errs.New("transport.new", errs.CodeConfig, errs.WithMessage("websocket url required"))
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = WebsocketDialer{HTTPClient: nil, Header: nil, ReadLimit: defaultReadLimit}
	}
	m := &Manager{
		url:             url,
		dialer:          dialer,
		auth:            append([]byte(nil), cfg.AuthFrame...),
		replay:          cfg.Replay,
		logger:          cfg.Logger.With().Str("component", "transport").Logger(),
		metrics:         cfg.Metrics,
		initialInterval: durationOr(cfg.ReconnectInitialInterval, defaultReconnectInitialInterval),
		maxInterval:     durationOr(cfg.ReconnectMaxInterval, defaultReconnectMaxInterval),
		maxElapsed:      durationOr(cfg.ReconnectMaxElapsed, defaultReconnectMaxElapsed),
	}
	m.state.Store(int32(StateDisconnected))
	return m, nil
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}

// State returns the current lifecycle state.
func (m *Manager) State() State { return State(m.state.Load()) }

// Generation identifies the current connection. It increases every time a new
// connection is published and never decreases.
func (m *Manager) Generation() uint64 { return m.generation.Load() }

// Connected reports whether a connection is currently published.
func (m *Manager) Connected() bool {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.writer != nil
}

func (m *Manager) setState(s State) { m.state.Store(int32(s)) }

// Open dials and authenticates a connection. It is a no-op when one is
// already published, and re-arms a Manager that was closed by its owner.
func (m *Manager) Open(ctx context.Context) error {
	m.reconnectMu.Lock()
	defer m.reconnectMu.Unlock()
	m.shutdown.Store(false)
	if m.Connected() {
		return nil
	}
	return m.open(ctx)
}

func (m *Manager) open(ctx context.Context) error {
	m.setState(StateConnecting)
	conn, err := m.dialer.Dial(ctx, m.url)
	if err != nil {
		m.setState(StateDisconnected)
		return errs.New("transport.open", errs.CodeTransport,
			errs.WithMessage("dial failed"),
			errs.WithField("url", m.url),
			errs.WithCause(err))
	}
	m.setState(StateConnected)
	id := uuid.New()

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if len(m.auth) > 0 {
		m.setState(StateAuthenticating)
		if err := conn.Write(ctx, m.auth); err != nil {
			_ = conn.Close()
			m.setState(StateDisconnected)
			return errs.New("transport.open", errs.CodeTransport,
				errs.WithMessage("auth frame write failed"),
				errs.WithField("link", id.String()),
				errs.WithCause(err))
		}
	}

	var replayed int
	if m.replay != nil {
		for _, frame := range m.replay() {
			if err := conn.Write(ctx, frame); err != nil {
				_ = conn.Close()
				m.setState(StateDisconnected)
				return errs.New("transport.open", errs.CodeTransport,
					errs.WithMessage("replay frame write failed"),
					errs.WithField("link", id.String()),
					errs.WithCause(err))
			}
			replayed++
		}
	}

	l := &link{conn: conn, gen: m.generation.Add(1), id: id}
	m.readMu.Lock()
	m.writer = l
	m.reader = l
	m.readMu.Unlock()
	m.setState(StateReady)

	m.logger.Info().
		Str("link", id.String()).
		Uint64("generation", l.gen).
		Bool("authenticated", len(m.auth) > 0).
		Int("replayed", replayed).
		Msg("connection established")
	return nil
}

// Close performs a normal-closure handshake on the published connection and
// clears both slots. A closed Manager does not reconnect until Open is called
// again. Close is idempotent.
func (m *Manager) Close() error {
	m.shutdown.Store(true)
	m.reconnectMu.Lock()
	defer m.reconnectMu.Unlock()
	return m.close()
}

func (m *Manager) close() error {
	m.writeMu.Lock()
	m.readMu.Lock()
	l := m.writer
	if l == nil {
		l = m.reader
	}
	m.writer = nil
	m.reader = nil
	m.readMu.Unlock()
	m.writeMu.Unlock()
	m.setState(StateDisconnected)

	if l == nil {
		return nil
	}
	m.logger.Info().Str("link", l.id.String()).Uint64("generation", l.gen).Msg("connection closed")
	if err := l.conn.Close(); err != nil {
		return errs.New("transport.close", errs.CodeTransport,
			errs.WithMessage("close handshake failed"),
			errs.WithCause(err))
	}
	return nil
}

// Reconnect replaces the connection observed at generation observed. When the
// generation has already moved on, another caller has reconnected and the
// call returns without touching the connection.
func (m *Manager) Reconnect(ctx context.Context, observed uint64) error {
	m.reconnectMu.Lock()
	defer m.reconnectMu.Unlock()

	if m.shutdown.Load() {
		return errs.New("transport.reconnect", errs.CodeNotConnected,
			errs.WithMessage("connection closed by owner"),
			errs.WithCanonicalCode(errs.CanonicalConnectionClosed))
	}
	if current := m.generation.Load(); current != observed {
		m.logger.Debug().
			Uint64("observed", observed).
			Uint64("current", current).
			Msg("reconnect already performed")
		return nil
	}

	if err := m.close(); err != nil {
		m.logger.Warn().Err(err).Msg("closing stale connection")
	}
	if err := m.open(ctx); err != nil {
		m.metrics.RecordReconnect(ctx, telemetry.ResultError)
		return err
	}
	m.metrics.RecordReconnect(ctx, telemetry.ResultSuccess)
	return nil
}

// markDown moves the state to disconnected if gen is still the published connection.
func (m *Manager) markDown(gen uint64) {
	if m.generation.Load() == gen {
		m.setState(StateDisconnected)
	}
}

func (m *Manager) snapshotReader() *link {
	m.readMu.Lock()
	defer m.readMu.Unlock()
	return m.reader
}
