package aevo

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/coachpo/aevo/internal/transport"
	"github.com/coachpo/aevo/pkg/signer"
)

const (
	defaultRESTRate  = rate.Limit(20)
	defaultRESTBurst = 20
	defaultTimeout   = 15 * time.Second
)

// Conn is one duplex text-frame connection to the streaming gateway.
type Conn = transport.Conn

// Dialer opens streaming connections.
type Dialer = transport.Dialer

// DialerFunc adapts a function to Dialer.
type DialerFunc = transport.DialerFunc

// Option configures a Client.
type Option func(*options)

type options struct {
	logger              zerolog.Logger
	httpClient          *http.Client
	dialer              Dialer
	limiter             *rate.Limiter
	meterProvider       metric.MeterProvider
	tracerProvider      trace.TracerProvider
	clock               func() time.Time
	salt                signer.SaltSource
	reconnectMaxElapsed time.Duration
	restURL             string
	wsURL               string
}

func defaultOptions() options {
	return options{
		logger:              zerolog.Nop(),
		httpClient:          &http.Client{Timeout: defaultTimeout},
		dialer:              nil,
		limiter:             rate.NewLimiter(defaultRESTRate, defaultRESTBurst),
		meterProvider:       nil,
		tracerProvider:      nil,
		clock:               time.Now,
		salt:                nil,
		reconnectMaxElapsed: 0,
		restURL:             "",
		wsURL:               "",
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHTTPClient replaces the HTTP client used for REST calls.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithDialer replaces the streaming dialer.
func WithDialer(dialer Dialer) Option {
	return func(o *options) { o.dialer = dialer }
}

// WithRateLimit sets the client-side REST request rate. A non-positive burst
// disables limiting.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(o *options) {
		if burst <= 0 {
			o.limiter = nil
			return
		}
		o.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider. The global provider is used otherwise.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = provider }
}

// WithTracerProvider sets the OpenTelemetry tracer provider. The global provider is used otherwise.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = provider }
}

// WithClock overrides the wall clock used for order timestamps.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithSaltSource overrides the signing salt generator.
func WithSaltSource(src signer.SaltSource) Option {
	return func(o *options) { o.salt = src }
}

// WithReconnectMaxElapsed bounds how long Run keeps trying to restore a lost connection.
func WithReconnectMaxElapsed(d time.Duration) Option {
	return func(o *options) { o.reconnectMaxElapsed = d }
}

// WithRESTBaseURL overrides the environment REST endpoint.
func WithRESTBaseURL(raw string) Option {
	return func(o *options) { o.restURL = strings.TrimRight(strings.TrimSpace(raw), "/") }
}

// WithWSURL overrides the environment streaming endpoint.
func WithWSURL(raw string) Option {
	return func(o *options) { o.wsURL = strings.TrimSpace(raw) }
}
