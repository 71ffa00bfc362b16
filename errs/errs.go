// Package errs provides structured error types and helpers for the Aevo client.
package errs

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

// Code identifies the category of a client failure.
type Code string

const (
	// CodeConfig indicates missing credentials, malformed keys or addresses, or an unknown environment.
	CodeConfig Code = "configuration"
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
	// CodeTransport indicates a transport failure other than a closed connection.
	CodeTransport Code = "transport"
	// CodeNotConnected indicates that no connection has been established.
	CodeNotConnected Code = "not_connected"
	// CodeDecode indicates a malformed or unexpected payload.
	CodeDecode Code = "decode"
	// CodeExhausted indicates that a bounded retry budget was used up.
	CodeExhausted Code = "exhausted"
	// CodeAuth indicates authentication or authorization errors reported by the exchange.
	CodeAuth Code = "auth"
	// CodeRateLimited indicates that the request exceeded rate limits.
	CodeRateLimited Code = "rate_limited"
	// CodeExchange indicates an exchange-side failure.
	CodeExchange Code = "exchange_error"
)

// CanonicalCode narrows a Code down to a specific, actionable condition.
type CanonicalCode string

const (
	// CanonicalUnknown captures uncategorized failures.
	CanonicalUnknown CanonicalCode = "unknown"
	// CanonicalMissingCredentials indicates that a credential required by the operation is absent.
	CanonicalMissingCredentials CanonicalCode = "missing_credentials"
	// CanonicalInvalidAddress indicates an address string that is not a valid account identifier.
	CanonicalInvalidAddress CanonicalCode = "invalid_address"
	// CanonicalInvalidKey indicates a signing key that cannot be parsed.
	CanonicalInvalidKey CanonicalCode = "invalid_key"
	// CanonicalConnectionClosed indicates the peer or the local side closed the connection.
	CanonicalConnectionClosed CanonicalCode = "connection_closed"
	// CanonicalOrderNotFound indicates that the referenced order does not exist.
	CanonicalOrderNotFound CanonicalCode = "order_not_found"
)

// E captures structured error information produced across the client.
type E struct {
	Op        string
	Code      Code
	HTTP      int
	RawMsg    string
	Message   string
	Canonical CanonicalCode
	Fields    map[string]string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the operation and error code.
func New(op string, code Code, opts ...Option) *E {
	e := &E{
		Op:        strings.TrimSpace(op),
		Code:      code,
		HTTP:      0,
		RawMsg:    "",
		Message:   "",
		Canonical: CanonicalUnknown,
		Fields:    nil,
		cause:     nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithHTTP records the associated HTTP status code.
func WithHTTP(status int) Option {
	return func(e *E) {
		e.HTTP = status
	}
}

// WithRawMessage captures the raw exchange error message.
func WithRawMessage(msg string) Option {
	return func(e *E) {
		e.RawMsg = msg
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// WithCanonicalCode sets the canonical error code describing the failure.
func WithCanonicalCode(code CanonicalCode) Option {
	trimmed := strings.TrimSpace(string(code))
	return func(e *E) {
		if trimmed == "" {
			e.Canonical = CanonicalUnknown
			return
		}
		e.Canonical = CanonicalCode(trimmed)
	}
}

// WithField appends a single key/value pair of context.
func WithField(key, value string) Option {
	return func(e *E) {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return
		}
		if e.Fields == nil {
			e.Fields = make(map[string]string, 1)
		}
		e.Fields[trimmedKey] = strings.TrimSpace(value)
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	op := strings.TrimSpace(e.Op)
	if op == "" {
		op = "unknown"
	}
	parts = append(parts, "op="+op)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if cc := strings.TrimSpace(string(e.Canonical)); cc != "" && cc != string(CanonicalUnknown) {
		parts = append(parts, "canonical="+cc)
	}
	if e.HTTP > 0 {
		parts = append(parts, "http="+strconv.Itoa(e.HTTP))
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.RawMsg != "" {
		parts = append(parts, "raw_msg="+strconv.Quote(e.RawMsg))
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+strconv.Quote(e.Fields[k]))
		}
		parts = append(parts, "fields="+strings.Join(pairs, ","))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// Is reports whether err carries an *E with the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var e *E
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}

// CodeOf returns the code of the first *E in err's chain, or the empty code.
func CodeOf(err error) Code {
	var e *E
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}

// MissingCredentials returns the standard configuration error for an absent credential.
func MissingCredentials(op, what string) *E {
	return New(op, CodeConfig,
		WithMessage(strings.TrimSpace(what)+" not set"),
		WithCanonicalCode(CanonicalMissingCredentials))
}
