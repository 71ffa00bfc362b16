// Package wire defines the JSON records exchanged with the Aevo streaming gateway
// and REST API.
package wire

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Op names an outbound streaming operation.
type Op string

const (
	OpAuth            Op = "auth"
	OpSubscribe       Op = "subscribe"
	OpUnsubscribe     Op = "unsubscribe"
	OpCreateOrder     Op = "create_order"
	OpEditOrder       Op = "edit_order"
	OpCancelOrder     Op = "cancel_order"
	OpCancelAllOrders Op = "cancel_all_orders"
	OpPing            Op = "ping"
)

// AuthRequestID is the correlation id carried by the authentication frame.
const AuthRequestID uint64 = 1

// Request is one outbound frame: {"op", "data", "id"}.
type Request struct {
	Op   Op      `json:"op"`
	Data any     `json:"data,omitempty"`
	ID   *uint64 `json:"id,omitempty"`
}

// AuthData carries API credentials for the auth op.
type AuthData struct {
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

// OrderData is the signed order carried by create_order.
// Numeric fields are decimal strings of scaled integers.
type OrderData struct {
	Maker      string `json:"maker"`
	IsBuy      bool   `json:"is_buy"`
	Instrument string `json:"instrument"`
	LimitPrice string `json:"limit_price"`
	Amount     string `json:"amount"`
	Salt       string `json:"salt"`
	Signature  string `json:"signature"`
	PostOnly   bool   `json:"post_only"`
	MMP        bool   `json:"mmp"`
	Timestamp  string `json:"timestamp"`
}

// EditOrderData replaces an existing order with a freshly signed one.
type EditOrderData struct {
	OrderID string `json:"order_id"`
	OrderData
}

// CancelOrderData names the order to cancel.
type CancelOrderData struct {
	OrderID string `json:"order_id"`
}

// CancelAllOrdersData is the empty body of cancel_all_orders.
type CancelAllOrdersData struct{}

// NewAuth builds the authentication frame.
func NewAuth(key, secret string) Request {
	id := AuthRequestID
	return Request{Op: OpAuth, Data: AuthData{Key: key, Secret: secret}, ID: &id}
}

// NewSubscribe builds a subscribe frame for the given channels.
func NewSubscribe(channels ...string) Request {
	return Request{Op: OpSubscribe, Data: channelList(channels)}
}

// NewUnsubscribe builds an unsubscribe frame for the given channels.
func NewUnsubscribe(channels ...string) Request {
	return Request{Op: OpUnsubscribe, Data: channelList(channels)}
}

// WithID returns a copy of r carrying the correlation id.
func (r Request) WithID(id uint64) Request {
	r.ID = &id
	return r
}

func channelList(channels []string) []string {
	out := make([]string, len(channels))
	copy(out, channels)
	return out
}

// Encode serializes a request into a text frame.
func Encode(r Request) ([]byte, error) {
	if r.Op == "" {
		return nil, fmt.Errorf("encode request: empty op")
	}
	frame, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", r.Op, err)
	}
	return frame, nil
}

// Channel names.
const (
	ChannelOrders    = "orders"
	ChannelFills     = "fills"
	ChannelPositions = "positions"
)

// TickersChannel returns the option ticker channel of an asset.
func TickersChannel(asset string) string { return "ticker:" + asset + ":OPTION" }

// MarkPriceChannel returns the option mark price channel of an asset.
func MarkPriceChannel(asset string) string { return "markprice:" + asset + ":OPTION" }

// OrderbookChannel returns the order book channel of an instrument.
func OrderbookChannel(instrument string) string { return "orderbook:" + instrument }

// TradesChannel returns the public trades channel of an instrument.
func TradesChannel(instrument string) string { return "trades:" + instrument }

// IndexChannel returns the index price channel of an asset.
func IndexChannel(asset string) string { return "index:" + asset }
