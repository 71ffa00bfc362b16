// Package telemetry provides semantic conventions and instruments for client observability.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic convention attribute keys.
// Following OpenTelemetry naming conventions: namespace.attribute_name
const (
	// Connection attributes
	AttrEnvironment     = attribute.Key("environment")
	AttrConnectionState = attribute.Key("connection.state")
	AttrConnectionID    = attribute.Key("connection.id")

	// Request attributes
	AttrOperation = attribute.Key("operation")
	AttrResult    = attribute.Key("result")
	AttrChannel   = attribute.Key("channel")
	AttrMessage   = attribute.Key("message.kind")

	// HTTP attributes
	AttrHTTPMethod = attribute.Key("http.method")
	AttrHTTPRoute  = attribute.Key("http.route")
	AttrHTTPStatus = attribute.Key("http.status_code")

	// Error attributes
	AttrErrorType = attribute.Key("error.type")
)

// Result values
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultClosed  = "closed"
)

// OperationAttributes returns attributes for a request outcome.
func OperationAttributes(environment, operation, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrOperation.String(operation),
		AttrResult.String(result),
	}
}

// HTTPAttributes returns attributes for a REST round trip.
func HTTPAttributes(environment, method, route string, status int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrHTTPMethod.String(method),
		AttrHTTPRoute.String(route),
		AttrHTTPStatus.Int(status),
	}
}

// ErrorAttributes returns attributes for a categorized failure.
func ErrorAttributes(environment, operation, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrOperation.String(operation),
		AttrErrorType.String(errorType),
	}
}
