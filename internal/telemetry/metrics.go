package telemetry

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/coachpo/aevo"

func meterFrom(provider metric.MeterProvider) metric.Meter {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	return provider.Meter(instrumentationName)
}

// TransportMetrics instruments the streaming connection. A nil receiver is a no-op.
type TransportMetrics struct {
	environment string

	sendAttempts   metric.Int64Counter
	reconnects     metric.Int64Counter
	framesReceived metric.Int64Counter
	decodeFailures metric.Int64Counter
	dropped        metric.Int64Counter
}

// NewTransportMetrics registers the streaming instruments on provider, or on the
// global provider when nil.
func NewTransportMetrics(provider metric.MeterProvider, environment string) *TransportMetrics {
	meter := meterFrom(provider)
	tm := &TransportMetrics{
		environment:    strings.ToLower(strings.TrimSpace(environment)),
		sendAttempts:   nil,
		reconnects:     nil,
		framesReceived: nil,
		decodeFailures: nil,
		dropped:        nil,
	}

	tm.sendAttempts, _ = meter.Int64Counter("aevo_ws_send_attempts",
		metric.WithDescription("Frame write attempts on the streaming connection"),
		metric.WithUnit("{attempt}"))

	tm.reconnects, _ = meter.Int64Counter("aevo_ws_reconnects",
		metric.WithDescription("Streaming connection re-establishments"),
		metric.WithUnit("{reconnect}"))

	tm.framesReceived, _ = meter.Int64Counter("aevo_ws_frames_received",
		metric.WithDescription("Frames read from the streaming connection"),
		metric.WithUnit("{frame}"))

	tm.decodeFailures, _ = meter.Int64Counter("aevo_ws_decode_failures",
		metric.WithDescription("Inbound frames that could not be decoded"),
		metric.WithUnit("{frame}"))

	tm.dropped, _ = meter.Int64Counter("aevo_ws_dropped_deliveries",
		metric.WithDescription("Decoded responses dropped because the consumer was gone"),
		metric.WithUnit("{response}"))

	return tm
}

// RecordSend records one write attempt and its result.
func (tm *TransportMetrics) RecordSend(ctx context.Context, result string) {
	if tm == nil || tm.sendAttempts == nil {
		return
	}
	tm.sendAttempts.Add(ctx, 1, metric.WithAttributes(OperationAttributes(tm.environment, "send", result)...))
}

// RecordReconnect records one reconnect attempt and its result.
func (tm *TransportMetrics) RecordReconnect(ctx context.Context, result string) {
	if tm == nil || tm.reconnects == nil {
		return
	}
	tm.reconnects.Add(ctx, 1, metric.WithAttributes(OperationAttributes(tm.environment, "reconnect", result)...))
}

// RecordFrame records one inbound frame.
func (tm *TransportMetrics) RecordFrame(ctx context.Context) {
	if tm == nil || tm.framesReceived == nil {
		return
	}
	tm.framesReceived.Add(ctx, 1, metric.WithAttributes(AttrEnvironment.String(tm.environment)))
}

// RecordDecodeFailure records one undecodable frame.
func (tm *TransportMetrics) RecordDecodeFailure(ctx context.Context) {
	if tm == nil || tm.decodeFailures == nil {
		return
	}
	tm.decodeFailures.Add(ctx, 1, metric.WithAttributes(ErrorAttributes(tm.environment, "decode", "decode")...))
}

// RecordDropped records one response the consumer did not take.
func (tm *TransportMetrics) RecordDropped(ctx context.Context) {
	if tm == nil || tm.dropped == nil {
		return
	}
	tm.dropped.Add(ctx, 1, metric.WithAttributes(AttrEnvironment.String(tm.environment)))
}

// RESTMetrics instruments REST round trips. A nil receiver is a no-op.
type RESTMetrics struct {
	environment string

	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewRESTMetrics registers the REST instruments on provider, or on the global
// provider when nil.
func NewRESTMetrics(provider metric.MeterProvider, environment string) *RESTMetrics {
	meter := meterFrom(provider)
	rm := &RESTMetrics{
		environment: strings.ToLower(strings.TrimSpace(environment)),
		requests:    nil,
		latency:     nil,
	}

	rm.requests, _ = meter.Int64Counter("aevo_rest_requests",
		metric.WithDescription("REST requests issued by the client"),
		metric.WithUnit("{request}"))

	rm.latency, _ = meter.Float64Histogram("aevo_rest_latency",
		metric.WithDescription("REST round trip latency"),
		metric.WithUnit("ms"))

	return rm
}

// RecordRequest records one completed round trip. Status is zero when no response arrived.
func (rm *RESTMetrics) RecordRequest(ctx context.Context, method, route string, status int, elapsed time.Duration) {
	if rm == nil {
		return
	}
	attrs := metric.WithAttributes(HTTPAttributes(rm.environment, method, route, status)...)
	if rm.requests != nil {
		rm.requests.Add(ctx, 1, attrs)
	}
	if rm.latency != nil {
		rm.latency.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
	}
}
