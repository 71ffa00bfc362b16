package wire

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/coachpo/aevo/errs"
)

// Kind classifies an inbound frame.
type Kind string

const (
	// KindPush is a subscription update carrying a channel.
	KindPush Kind = "push"
	// KindReply answers a request carrying an id.
	KindReply Kind = "reply"
	// KindError reports a failed request.
	KindError Kind = "error"
)

// Response is a decoded inbound frame. Payload holds the typed record selected
// by the channel prefix (pushes) or by the op of the correlated request
// (replies); it is nil when the shape is unknown, in which case Data still
// carries the raw JSON.
type Response struct {
	Kind    Kind
	Channel string
	ID      *uint64
	Op      Op
	Data    json.RawMessage
	Error   string
	Payload any
}

// OpResolver maps a correlation id back to the op of the request that used it.
type OpResolver func(id uint64) (Op, bool)

type envelope struct {
	Channel string          `json:"channel"`
	ID      json.RawMessage `json:"id"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

// Decoder turns text frames into Responses.
type Decoder struct {
	resolve OpResolver
}

// NewDecoder builds a Decoder; resolve may be nil, in which case replies keep
// only their raw data.
func NewDecoder(resolve OpResolver) *Decoder {
	return &Decoder{resolve: resolve}
}

// Decode parses one frame. Frames that are not JSON objects, or whose known
// payload does not match its schema, are reported as decode errors.
func (d *Decoder) Decode(frame []byte) (Response, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Response{}, decodeError("malformed frame", err)
	}

	id, err := parseID(env.ID)
	if err != nil {
		return Response{}, decodeError("malformed id", err)
	}

	if msg := errorText(env.Error); msg != "" {
		resp := Response{Kind: KindError, ID: id, Error: msg, Data: env.Data}
		if id != nil {
			resp.Op, _ = d.lookup(*id)
		}
		return resp, nil
	}

	switch {
	case env.Channel != "":
		resp := Response{Kind: KindPush, Channel: env.Channel, ID: id, Data: env.Data}
		payload, err := decodePush(env.Channel, env.Data)
		if err != nil {
			return Response{}, decodeError("channel "+env.Channel, err)
		}
		resp.Payload = payload
		return resp, nil
	case id != nil:
		resp := Response{Kind: KindReply, ID: id, Data: env.Data}
		op, ok := d.lookup(*id)
		if !ok {
			return resp, nil
		}
		resp.Op = op
		payload, err := decodeReply(op, env.Data)
		if err != nil {
			return Response{}, decodeError("reply "+string(op), err)
		}
		resp.Payload = payload
		return resp, nil
	case !isNull(env.Data):
		// Acks for uncorrelated requests carry only data.
		return Response{Kind: KindReply, Data: env.Data}, nil
	default:
		return Response{}, decodeError("frame carries neither channel, id nor data", nil)
	}
}

func (d *Decoder) lookup(id uint64) (Op, bool) {
	if d == nil || d.resolve == nil {
		return "", false
	}
	return d.resolve(id)
}

func decodePush(channel string, data json.RawMessage) (any, error) {
	name, _, _ := strings.Cut(channel, ":")
	switch name {
	case "ticker", "markprice":
		return decodeInto[TickerData](data)
	case "book-ticker":
		return decodeInto[BookTickerData](data)
	case "orderbook":
		return decodeInto[OrderBookData](data)
	case "trades":
		return decodeInto[TradeData](data)
	case "index":
		return decodeInto[IndexData](data)
	case ChannelOrders:
		return decodeInto[OrdersData](data)
	case ChannelFills:
		return decodeInto[FillsData](data)
	case ChannelPositions:
		return decodeInto[PositionsData](data)
	default:
		return nil, nil
	}
}

func decodeReply(op Op, data json.RawMessage) (any, error) {
	switch op {
	case OpCreateOrder, OpEditOrder:
		return decodeInto[OrderReply](data)
	case OpCancelOrder:
		return decodeInto[CancelOrderReply](data)
	case OpCancelAllOrders:
		return decodeInto[CancelAllOrdersReply](data)
	case OpAuth:
		return decodeInto[StatusReply](data)
	case OpPing:
		return decodeInto[PingReply](data)
	case OpSubscribe, OpUnsubscribe:
		return decodeInto[[]string](data)
	default:
		return nil, nil
	}
}

func isNull(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func decodeInto[T any](data json.RawMessage) (any, error) {
	var out T
	if isNull(data) {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// parseID accepts numeric and quoted ids.
func parseID(raw json.RawMessage) (*uint64, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	trimmed = strings.Trim(trimmed, `"`)
	if trimmed == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// errorText accepts both a bare string and an object with a message.
func errorText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		if obj.Error != "" {
			return obj.Error
		}
	}
	return string(trimmed)
}

func decodeError(msg string, cause error) error {
	opts := []errs.Option{errs.WithMessage(msg)}
	if cause != nil {
		opts = append(opts, errs.WithCause(cause))
	}
	return errs.New("wire.decode", errs.CodeDecode, opts...)
}

// DecodeRequest parses an outbound frame back into its op, id and raw data.
// It is used by tests and by servers that echo requests.
func DecodeRequest(frame []byte) (Op, *uint64, json.RawMessage, error) {
	var raw struct {
		Op   Op              `json:"op"`
		Data json.RawMessage `json:"data"`
		ID   json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(frame, &raw); err != nil {
		return "", nil, nil, decodeError("malformed request", err)
	}
	if raw.Op == "" {
		return "", nil, nil, decodeError("request without op", nil)
	}
	id, err := parseID(raw.ID)
	if err != nil {
		return "", nil, nil, fmt.Errorf("request id: %w", err)
	}
	return raw.Op, id, raw.Data, nil
}
