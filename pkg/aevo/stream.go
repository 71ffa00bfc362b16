package aevo

import (
	"context"
	"strconv"
	"strings"

	"github.com/coachpo/aevo/errs"
	"github.com/coachpo/aevo/internal/numeric"
	"github.com/coachpo/aevo/pkg/signer"
	"github.com/coachpo/aevo/pkg/wire"
)

// Subscribe asks the gateway to push the given channels. Acknowledgements and
// updates arrive through Run. Subscribed channels are replayed on every new
// connection until they are unsubscribed.
func (c *Client) Subscribe(ctx context.Context, channels ...string) error {
	cleaned, err := cleanChannels("aevo.subscribe", channels)
	if err != nil {
		return err
	}
	added := c.track(cleaned)
	if err := c.send(ctx, wire.NewSubscribe(cleaned...)); err != nil {
		c.untrack(added)
		return err
	}
	return nil
}

// Unsubscribe stops the given channels. They are no longer replayed even when
// the request itself fails.
func (c *Client) Unsubscribe(ctx context.Context, channels ...string) error {
	cleaned, err := cleanChannels("aevo.unsubscribe", channels)
	if err != nil {
		return err
	}
	c.untrack(cleaned)
	return c.send(ctx, wire.NewUnsubscribe(cleaned...))
}

func cleanChannels(op string, channels []string) ([]string, error) {
	out := make([]string, 0, len(channels))
	for _, ch := range channels {
		if trimmed := strings.TrimSpace(ch); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil, errs.New(op, errs.CodeInvalid, errs.WithMessage("at least one channel required"))
	}
	return out, nil
}

// SubscribeTickers subscribes to the option tickers of an asset.
func (c *Client) SubscribeTickers(ctx context.Context, asset string) error {
	return c.Subscribe(ctx, wire.TickersChannel(asset))
}

// SubscribeTicker subscribes to an explicit ticker channel.
func (c *Client) SubscribeTicker(ctx context.Context, channel string) error {
	return c.Subscribe(ctx, channel)
}

// SubscribeMarkPrice subscribes to the option mark prices of an asset.
func (c *Client) SubscribeMarkPrice(ctx context.Context, asset string) error {
	return c.Subscribe(ctx, wire.MarkPriceChannel(asset))
}

// SubscribeOrderbook subscribes to the order book of an instrument.
func (c *Client) SubscribeOrderbook(ctx context.Context, instrument string) error {
	return c.Subscribe(ctx, wire.OrderbookChannel(instrument))
}

// SubscribeTrades subscribes to the public trades of an instrument.
func (c *Client) SubscribeTrades(ctx context.Context, instrument string) error {
	return c.Subscribe(ctx, wire.TradesChannel(instrument))
}

// SubscribeIndex subscribes to the index price of an asset.
func (c *Client) SubscribeIndex(ctx context.Context, asset string) error {
	return c.Subscribe(ctx, wire.IndexChannel(asset))
}

// SubscribeOrders subscribes to the account's order updates.
func (c *Client) SubscribeOrders(ctx context.Context) error {
	return c.Subscribe(ctx, wire.ChannelOrders)
}

// SubscribeFills subscribes to the account's fills.
func (c *Client) SubscribeFills(ctx context.Context) error {
	return c.Subscribe(ctx, wire.ChannelFills)
}

// SubscribePositions subscribes to the account's positions.
func (c *Client) SubscribePositions(ctx context.Context) error {
	return c.Subscribe(ctx, wire.ChannelPositions)
}

// Ping asks the gateway for a liveness reply.
func (c *Client) Ping(ctx context.Context) error {
	return c.send(ctx, wire.Request{Op: wire.OpPing})
}

// CreateOrder signs and submits an order over the streaming session. The
// returned order id is the signed hash of the order.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (string, error) {
	signed, err := c.signOrder(req)
	if err != nil {
		return "", err
	}
	data := streamOrder(req, signed)
	if err := c.send(ctx, wire.Request{Op: wire.OpCreateOrder, Data: data}); err != nil {
		return "", err
	}
	c.logger.Info().
		Str("order_id", signed.Hash).
		Uint64("instrument", req.Instrument).
		Bool("is_buy", req.IsBuy).
		Str("amount", numeric.FormatUnits(signed.Amount, signer.AmountDecimals)).
		Msg("order submitted")
	return signed.Hash, nil
}

// EditOrder replaces orderID with a freshly signed order and returns the new order id.
func (c *Client) EditOrder(ctx context.Context, orderID string, req OrderRequest) (string, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", errs.New("aevo.edit_order", errs.CodeInvalid, errs.WithMessage("order id required"))
	}
	signed, err := c.signOrder(req)
	if err != nil {
		return "", err
	}
	data := wire.EditOrderData{OrderID: orderID, OrderData: streamOrder(req, signed)}
	if err := c.send(ctx, wire.Request{Op: wire.OpEditOrder, Data: data}); err != nil {
		return "", err
	}
	c.logger.Info().Str("order_id", orderID).Str("new_order_id", signed.Hash).Msg("order edit submitted")
	return signed.Hash, nil
}

// CancelOrder cancels one order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errs.New("aevo.cancel_order", errs.CodeInvalid, errs.WithMessage("order id required"))
	}
	req := wire.Request{Op: wire.OpCancelOrder, Data: wire.CancelOrderData{OrderID: orderID}}
	if err := c.send(ctx, req); err != nil {
		return err
	}
	c.logger.Info().Str("order_id", orderID).Msg("order cancel submitted")
	return nil
}

// CancelAllOrders cancels every open order of the account.
func (c *Client) CancelAllOrders(ctx context.Context) error {
	if err := c.send(ctx, wire.Request{Op: wire.OpCancelAllOrders, Data: wire.CancelAllOrdersData{}}); err != nil {
		return err
	}
	c.logger.Info().Msg("cancel all submitted")
	return nil
}

func streamOrder(req OrderRequest, signed signer.SignedOrder) wire.OrderData {
	return wire.OrderData{
		Maker:      signed.Maker,
		IsBuy:      req.IsBuy,
		Instrument: strconv.FormatUint(req.Instrument, 10),
		LimitPrice: signed.LimitPrice.String(),
		Amount:     signed.Amount.String(),
		Salt:       signed.Salt.String(),
		Signature:  signed.Signature,
		PostOnly:   req.postOnly(),
		MMP:        flag(req.MMP, true),
		Timestamp:  strconv.FormatInt(signed.Timestamp, 10),
	}
}
