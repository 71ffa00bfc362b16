// Package aevo is a client for the Aevo derivatives exchange. It keeps an
// authenticated streaming session alive, signs orders and withdrawals, and
// wraps the REST API.
package aevo

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/coachpo/aevo/errs"
	"github.com/coachpo/aevo/internal/telemetry"
	"github.com/coachpo/aevo/internal/transport"
	"github.com/coachpo/aevo/pkg/env"
	"github.com/coachpo/aevo/pkg/signer"
	"github.com/coachpo/aevo/pkg/wire"
)

// Credentials are the secrets a Client acts with. Signed trading needs
// SigningKey and WalletAddress; authenticated requests need APIKey and
// APISecret. Absent fields are reported by the call that needs them.
type Credentials struct {
	SigningKey    string
	WalletAddress string
	APIKey        string
	APISecret     string
}

func (c Credentials) hasAPIKey() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.APISecret) != ""
}

func (c Credentials) apiKeyError(op string) error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errs.MissingCredentials(op, "api key")
	}
	if strings.TrimSpace(c.APISecret) == "" {
		return errs.MissingCredentials(op, "api secret")
	}
	return nil
}

// State is the lifecycle position of the streaming session.
type State = transport.State

// Session states.
const (
	StateDisconnected   = transport.StateDisconnected
	StateConnecting     = transport.StateConnecting
	StateConnected      = transport.StateConnected
	StateAuthenticating = transport.StateAuthenticating
	StateReady          = transport.StateReady
)

// pendingTTL bounds how long a correlation id waits for its reply.
const pendingTTL = time.Minute

type pendingRequest struct {
	op   wire.Op
	sent time.Time
}

// Client is safe for concurrent use.
type Client struct {
	creds  Credentials
	env    env.Config
	opts   options
	logger zerolog.Logger

	signer    *signer.Signer
	signerErr error

	transport *transport.Manager
	decoder   *wire.Decoder

	ids       atomic.Uint64
	pending   sync.Map // uint64 -> pendingRequest
	lastSweep atomic.Int64

	subsMu sync.Mutex
	subs   map[string]struct{}

	rest *RESTClient
}

// New builds a Client for the environment. Nothing is dialed until Connect.
func New(creds Credentials, environment env.Environment, opts ...Option) (*Client, error) {
	cfg, err := env.Lookup(environment)
	if err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.restURL != "" {
		cfg.RESTURL = o.restURL
	}
	if o.wsURL != "" {
		cfg.WSURL = o.wsURL
	}

	c := &Client{
		creds:  creds,
		env:    cfg,
		opts:   o,
		logger: o.logger.With().Str("component", "aevo").Str("environment", cfg.Environment.String()).Logger(),
		subs:   make(map[string]struct{}),
	}
	c.ids.Store(wire.AuthRequestID)

	if err := c.initSigner(); err != nil {
		return nil, err
	}

	var auth []byte
	if creds.hasAPIKey() {
		auth, err = wire.Encode(wire.NewAuth(creds.APIKey, creds.APISecret))
		if err != nil {
			return nil, fmt.Errorf("encode auth frame: %w", err)
		}
	}
	c.transport, err = transport.New(transport.Config{
		URL:                 cfg.WSURL,
		Dialer:              o.dialer,
		AuthFrame:           auth,
		Replay:              c.resubscribe,
		Logger:              o.logger,
		Metrics:             telemetry.NewTransportMetrics(o.meterProvider, cfg.Environment.String()),
		ReconnectMaxElapsed: o.reconnectMaxElapsed,
	})
	if err != nil {
		return nil, err
	}
	c.decoder = wire.NewDecoder(c.resolve)
	c.rest = newRESTClient(c)
	return c, nil
}

// initSigner builds the signer when both signing credentials are present.
// Malformed credentials fail construction; absent ones fail the signing call.
func (c *Client) initSigner() error {
	key := strings.TrimSpace(c.creds.SigningKey)
	wallet := strings.TrimSpace(c.creds.WalletAddress)
	switch {
	case wallet == "":
		c.signerErr = errs.MissingCredentials("aevo.sign", "wallet address")
		return nil
	case key == "":
		c.signerErr = errs.MissingCredentials("aevo.sign", "signing key")
		return nil
	}
	var opts []signer.Option
	if c.opts.salt != nil {
		opts = append(opts, signer.WithSaltSource(c.opts.salt))
	}
	s, err := signer.New(key, wallet, c.env.Domain, opts...)
	if err != nil {
		return err
	}
	c.signer = s
	return nil
}

// Environment returns the resolved environment configuration.
func (c *Client) Environment() env.Config { return c.env }

// REST returns the REST API wrapper sharing this client's credentials.
func (c *Client) REST() *RESTClient { return c.rest }

// Connect dials and, when API credentials are present, authenticates the
// streaming session.
func (c *Client) Connect(ctx context.Context) error {
	return c.transport.Open(ctx)
}

// Close ends the streaming session. Run returns once the connection is closed.
func (c *Client) Close() error {
	return c.transport.Close()
}

// Reconnect replaces the streaming connection.
func (c *Client) Reconnect(ctx context.Context) error {
	return c.transport.Reconnect(ctx, c.transport.Generation())
}

// State returns the streaming session state.
func (c *Client) State() State { return c.transport.State() }

// NewInbox creates a consumer queue for Run.
func (c *Client) NewInbox(size int) *Inbox { return NewInbox(size) }

// Run feeds decoded responses into inbox until ctx is cancelled or the
// session is closed, then closes inbox.C. An inbox serves a single Run.
func (c *Client) Run(ctx context.Context, inbox *Inbox) error {
	if inbox == nil {
		return errs.New("aevo.run", errs.CodeInvalid, errs.WithMessage("inbox required"))
	}
	if !inbox.attach() {
		return errs.New("aevo.run", errs.CodeInvalid, errs.WithMessage("inbox already attached to a receive loop"))
	}
	defer inbox.finish()
	return c.transport.Run(ctx, c.decoder, inbox)
}

// Subscriptions returns the channels replayed on every new connection, sorted.
func (c *Client) Subscriptions() []string {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	out := make([]string, 0, len(c.subs))
	for ch := range c.subs {
		out = append(out, ch)
	}
	slices.Sort(out)
	return out
}

// track records channels and returns those that were not tracked before.
func (c *Client) track(channels []string) []string {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	var added []string
	for _, ch := range channels {
		if _, ok := c.subs[ch]; !ok {
			c.subs[ch] = struct{}{}
			added = append(added, ch)
		}
	}
	return added
}

func (c *Client) untrack(channels []string) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range channels {
		delete(c.subs, ch)
	}
}

// resubscribe builds the subscribe frame written on every new connection.
// Its acknowledgement reaches the inbox like any other subscribe reply.
func (c *Client) resubscribe() [][]byte {
	c.sweepPending(c.opts.clock())
	channels := c.Subscriptions()
	if len(channels) == 0 {
		return nil
	}
	id := c.ids.Add(1)
	frame, err := wire.Encode(wire.NewSubscribe(channels...).WithID(id))
	if err != nil {
		c.logger.Error().Err(err).Msg("encode resubscribe frame")
		return nil
	}
	c.remember(id, wire.OpSubscribe)
	c.logger.Info().Strs("channels", channels).Uint64("id", id).Msg("replaying subscriptions")
	return [][]byte{frame}
}

func (c *Client) resolve(id uint64) (wire.Op, bool) {
	if id == wire.AuthRequestID {
		return wire.OpAuth, true
	}
	v, ok := c.pending.LoadAndDelete(id)
	if !ok {
		return "", false
	}
	req, ok := v.(pendingRequest)
	return req.op, ok
}

// remember stores the op awaiting a reply under id. Entries older than
// pendingTTL are swept at most once per pendingTTL.
func (c *Client) remember(id uint64, op wire.Op) {
	now := c.opts.clock()
	c.pending.Store(id, pendingRequest{op: op, sent: now})
	last := c.lastSweep.Load()
	if now.UnixNano()-last >= int64(pendingTTL) && c.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		c.sweepPending(now)
	}
}

func (c *Client) sweepPending(now time.Time) {
	cutoff := now.Add(-pendingTTL)
	var evicted int
	c.pending.Range(func(key, value any) bool {
		if req, ok := value.(pendingRequest); !ok || req.sent.Before(cutoff) {
			c.pending.Delete(key)
			evicted++
		}
		return true
	})
	if evicted > 0 {
		c.logger.Debug().Int("evicted", evicted).Msg("dropped unanswered correlation ids")
	}
}

// send assigns a correlation id, encodes and writes a request. The id is
// forgotten when the write fails.
func (c *Client) send(ctx context.Context, req wire.Request) error {
	id := c.ids.Add(1)
	req = req.WithID(id)
	c.remember(id, req.Op)
	frame, err := wire.Encode(req)
	if err != nil {
		c.pending.Delete(id)
		return errs.New("aevo."+string(req.Op), errs.CodeInvalid, errs.WithCause(err))
	}
	if err := c.transport.Send(ctx, frame); err != nil {
		c.pending.Delete(id)
		return err
	}
	return nil
}

func (c *Client) signOrder(req OrderRequest) (signer.SignedOrder, error) {
	if c.signer == nil {
		return signer.SignedOrder{}, c.signerErr
	}
	return c.signer.SignOrder(signer.OrderIntent{
		Instrument: req.Instrument,
		IsBuy:      req.IsBuy,
		LimitPrice: req.LimitPrice,
		Quantity:   req.Quantity,
		Timestamp:  c.opts.clock().Unix(),
	})
}

func (c *Client) signWithdraw(intent signer.WithdrawIntent) (signer.SignedWithdraw, error) {
	if c.signer == nil {
		return signer.SignedWithdraw{}, c.signerErr
	}
	return c.signer.SignWithdraw(intent)
}

// OrderRequest describes an order to place or replace. A nil LimitPrice
// places a market order. Nil flags take their defaults: PostOnly is true for
// limit orders and false for market orders, ReduceOnly and ClosePosition are
// false, MMP is true. MMP applies to streaming orders only; ReduceOnly,
// ClosePosition, Trigger and Stop apply to REST orders only.
type OrderRequest struct {
	Instrument    uint64
	IsBuy         bool
	LimitPrice    *decimal.Decimal
	Quantity      decimal.Decimal
	PostOnly      *bool
	ReduceOnly    *bool
	ClosePosition *bool
	MMP           *bool
	Trigger       *string
	Stop          *string
}

// LimitOrder builds a limit order request.
func LimitOrder(instrument uint64, isBuy bool, price, quantity decimal.Decimal) OrderRequest {
	return OrderRequest{Instrument: instrument, IsBuy: isBuy, LimitPrice: &price, Quantity: quantity}
}

// MarketOrder builds a market order request.
func MarketOrder(instrument uint64, isBuy bool, quantity decimal.Decimal) OrderRequest {
	return OrderRequest{Instrument: instrument, IsBuy: isBuy, Quantity: quantity}
}

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

func (r OrderRequest) postOnly() bool {
	if r.PostOnly != nil {
		return *r.PostOnly
	}
	return r.LimitPrice != nil
}

func flag(v *bool, fallback bool) bool {
	if v != nil {
		return *v
	}
	return fallback
}
