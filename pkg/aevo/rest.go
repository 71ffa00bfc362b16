package aevo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/coachpo/aevo/errs"
	"github.com/coachpo/aevo/internal/numeric"
	"github.com/coachpo/aevo/internal/telemetry"
	"github.com/coachpo/aevo/pkg/signer"
	"github.com/coachpo/aevo/pkg/wire"
)

const (
	headerAPIKey    = "AEVO-KEY"
	headerAPISecret = "AEVO-SECRET"

	maxErrorBody    = 4 << 10
	maxResponseBody = 8 << 20

	tracerName = "github.com/coachpo/aevo/rest"
)

// RESTClient wraps the Aevo REST API.
type RESTClient struct {
	client  *Client
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	tracer  trace.Tracer
	metrics *telemetry.RESTMetrics
	logger  zerolog.Logger
}

func newRESTClient(c *Client) *RESTClient {
	provider := c.opts.tracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &RESTClient{
		client:  c,
		baseURL: strings.TrimRight(c.env.RESTURL, "/"),
		http:    c.opts.httpClient,
		limiter: c.opts.limiter,
		tracer:  provider.Tracer(tracerName),
		metrics: telemetry.NewRESTMetrics(c.opts.meterProvider, c.env.Environment.String()),
		logger:  c.opts.logger.With().Str("component", "rest").Logger(),
	}
}

// PlacedOrder pairs the signed order id with the exchange's view of the order.
type PlacedOrder struct {
	OrderID string
	Order   wire.OrderInfo
}

// WithdrawRequest describes a withdrawal. Empty Collateral and To default to
// the environment's L1 USDC and L2 withdraw proxy; a nil Data signs zero and
// is omitted from the request.
type WithdrawRequest struct {
	Amount     decimal.Decimal
	Collateral string
	To         string
	Data       *big.Int
}

// AccountSnapshot is the account, portfolio and open orders fetched together.
type AccountSnapshot struct {
	Account    wire.Account
	Portfolio  wire.Portfolio
	OpenOrders []wire.OrderInfo
}

// GetIndex returns the index price of an asset.
func (r *RESTClient) GetIndex(ctx context.Context, asset string) (wire.IndexData, error) {
	var out wire.IndexData
	query := url.Values{"asset": []string{asset}}
	err := r.do(ctx, request{method: http.MethodGet, route: "/index", query: query}, &out)
	return out, err
}

// GetMarkets lists the markets of an asset, or all markets when asset is empty.
func (r *RESTClient) GetMarkets(ctx context.Context, asset string) ([]wire.MarketInfo, error) {
	var out []wire.MarketInfo
	var query url.Values
	if strings.TrimSpace(asset) != "" {
		query = url.Values{"asset": []string{asset}}
	}
	err := r.do(ctx, request{method: http.MethodGet, route: "/markets", query: query}, &out)
	return out, err
}

// GetAccount returns the authenticated account.
func (r *RESTClient) GetAccount(ctx context.Context) (wire.Account, error) {
	var out wire.Account
	err := r.do(ctx, request{method: http.MethodGet, route: "/account", auth: true}, &out)
	return out, err
}

// GetPortfolio returns the authenticated portfolio.
func (r *RESTClient) GetPortfolio(ctx context.Context) (wire.Portfolio, error) {
	var out wire.Portfolio
	err := r.do(ctx, request{method: http.MethodGet, route: "/portfolio", auth: true}, &out)
	return out, err
}

// GetOpenOrders returns the open orders of the account.
func (r *RESTClient) GetOpenOrders(ctx context.Context) ([]wire.OrderInfo, error) {
	var out []wire.OrderInfo
	err := r.do(ctx, request{method: http.MethodGet, route: "/orders", auth: true}, &out)
	return out, err
}

// CreateOrder signs and places an order.
func (r *RESTClient) CreateOrder(ctx context.Context, req OrderRequest) (PlacedOrder, error) {
	if err := r.client.creds.apiKeyError("aevo.rest.create_order"); err != nil {
		return PlacedOrder{}, err
	}
	signed, err := r.client.signOrder(req)
	if err != nil {
		return PlacedOrder{}, err
	}
	var out wire.OrderInfo
	err = r.do(ctx, request{method: http.MethodPost, route: "/orders", body: restOrder(req, signed), auth: true}, &out)
	if err != nil {
		return PlacedOrder{}, err
	}
	return PlacedOrder{OrderID: signed.Hash, Order: out}, nil
}

// CreateMarketOrder signs and places a market order.
func (r *RESTClient) CreateMarketOrder(ctx context.Context, instrument uint64, isBuy bool, quantity decimal.Decimal) (PlacedOrder, error) {
	req := MarketOrder(instrument, isBuy, quantity)
	req.PostOnly = Bool(false)
	return r.CreateOrder(ctx, req)
}

// EditOrder replaces orderID with a freshly signed order.
func (r *RESTClient) EditOrder(ctx context.Context, orderID string, req OrderRequest) (PlacedOrder, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return PlacedOrder{}, errs.New("aevo.rest.edit_order", errs.CodeInvalid, errs.WithMessage("order id required"))
	}
	if err := r.client.creds.apiKeyError("aevo.rest.edit_order"); err != nil {
		return PlacedOrder{}, err
	}
	signed, err := r.client.signOrder(req)
	if err != nil {
		return PlacedOrder{}, err
	}
	var out wire.OrderInfo
	err = r.do(ctx, request{
		method: http.MethodPost,
		route:  "/orders/{id}",
		path:   "/orders/" + url.PathEscape(orderID),
		body:   restOrder(req, signed),
		auth:   true,
	}, &out)
	if err != nil {
		return PlacedOrder{}, err
	}
	return PlacedOrder{OrderID: signed.Hash, Order: out}, nil
}

// CancelOrder cancels one order.
func (r *RESTClient) CancelOrder(ctx context.Context, orderID string) (wire.CancelOrderResult, error) {
	var out wire.CancelOrderResult
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return out, errs.New("aevo.rest.cancel_order", errs.CodeInvalid, errs.WithMessage("order id required"))
	}
	err := r.do(ctx, request{
		method: http.MethodDelete,
		route:  "/orders/{id}",
		path:   "/orders/" + url.PathEscape(orderID),
		auth:   true,
	}, &out)
	return out, err
}

// CancelAllOrders cancels open orders, optionally narrowed by instrument type and asset.
func (r *RESTClient) CancelAllOrders(ctx context.Context, instrumentType, asset string) (wire.CancelAllOrdersResult, error) {
	var out wire.CancelAllOrdersResult
	body := wire.CancelAllOrdersFilter{
		InstrumentType: strings.TrimSpace(instrumentType),
		Asset:          strings.TrimSpace(asset),
	}
	err := r.do(ctx, request{method: http.MethodDelete, route: "/orders-all", body: body, auth: true}, &out)
	return out, err
}

// Withdraw signs and submits a withdrawal.
func (r *RESTClient) Withdraw(ctx context.Context, req WithdrawRequest) (wire.WithdrawResult, error) {
	var out wire.WithdrawResult
	if err := r.client.creds.apiKeyError("aevo.rest.withdraw"); err != nil {
		return out, err
	}
	addresses := r.client.env.Addresses
	collateral := strings.TrimSpace(req.Collateral)
	if collateral == "" {
		collateral = addresses.L1USDC
	}
	to := strings.TrimSpace(req.To)
	if to == "" {
		to = addresses.L2WithdrawProxy
	}
	signed, err := r.client.signWithdraw(signer.WithdrawIntent{
		Collateral: collateral,
		To:         to,
		Amount:     req.Amount,
		Data:       req.Data,
	})
	if err != nil {
		return out, err
	}
	body := wire.RestWithdraw{
		Account:    signed.Account,
		Collateral: signed.Collateral,
		To:         signed.To,
		Amount:     signed.Amount.String(),
		Salt:       signed.Salt.String(),
		Signature:  signed.Signature,
	}
	if req.Data != nil {
		data := signed.Data.String()
		body.Data = &data
	}
	r.logger.Info().Str("withdraw_id", signed.Hash).Str("amount", numeric.FormatUnits(signed.Amount, signer.AmountDecimals)).Msg("submitting withdrawal")
	err = r.do(ctx, request{method: http.MethodPost, route: "/withdraw", body: body, auth: true}, &out)
	return out, err
}

// Snapshot fetches account, portfolio and open orders concurrently. The first
// failure cancels the remaining requests.
func (r *RESTClient) Snapshot(ctx context.Context) (AccountSnapshot, error) {
	if err := r.client.creds.apiKeyError("aevo.rest.snapshot"); err != nil {
		return AccountSnapshot{}, err
	}
	var snap AccountSnapshot
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(func(ctx context.Context) error {
		account, err := r.GetAccount(ctx)
		snap.Account = account
		return err
	})
	p.Go(func(ctx context.Context) error {
		portfolio, err := r.GetPortfolio(ctx)
		snap.Portfolio = portfolio
		return err
	})
	p.Go(func(ctx context.Context) error {
		orders, err := r.GetOpenOrders(ctx)
		snap.OpenOrders = orders
		return err
	})
	if err := p.Wait(); err != nil {
		return AccountSnapshot{}, err
	}
	return snap, nil
}

func restOrder(req OrderRequest, signed signer.SignedOrder) wire.RestOrder {
	return wire.RestOrder{
		Maker:         signed.Maker,
		IsBuy:         req.IsBuy,
		Instrument:    strconv.FormatUint(req.Instrument, 10),
		LimitPrice:    signed.LimitPrice.String(),
		Amount:        signed.Amount.String(),
		Salt:          signed.Salt.String(),
		Signature:     signed.Signature,
		PostOnly:      req.postOnly(),
		ReduceOnly:    flag(req.ReduceOnly, false),
		ClosePosition: flag(req.ClosePosition, false),
		Timestamp:     strconv.FormatInt(signed.Timestamp, 10),
		Trigger:       req.Trigger,
		Stop:          req.Stop,
	}
}

type request struct {
	method string
	// route is the templated path used for spans and metrics; path, when set,
	// is the concrete path sent.
	route string
	path  string
	query url.Values
	body  any
	auth  bool
}

func (r *RESTClient) do(ctx context.Context, req request, out any) error {
	op := "aevo.rest " + req.method + " " + req.route
	if req.auth {
		if err := r.client.creds.apiKeyError(op); err != nil {
			return err
		}
	}
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate limiter: %w", op, err)
		}
	}

	ctx, span := r.tracer.Start(ctx, op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.method),
			attribute.String("http.route", req.route),
		))
	defer span.End()

	path := req.path
	if path == "" {
		path = req.route
	}
	target := r.baseURL + path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return r.fail(span, errs.New(op, errs.CodeInvalid, errs.WithMessage("encode body"), errs.WithCause(err)))
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return r.fail(span, errs.New(op, errs.CodeInvalid, errs.WithCause(err)))
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.auth {
		httpReq.Header.Set(headerAPIKey, r.client.creds.APIKey)
		httpReq.Header.Set(headerAPISecret, r.client.creds.APISecret)
	}

	start := time.Now()
	resp, err := r.http.Do(httpReq)
	if err != nil {
		r.metrics.RecordRequest(ctx, req.method, req.route, 0, time.Since(start))
		return r.fail(span, errs.New(op, errs.CodeTransport, errs.WithMessage("request failed"), errs.WithCause(err)))
	}
	defer func() { _ = resp.Body.Close() }()
	r.metrics.RecordRequest(ctx, req.method, req.route, resp.StatusCode, time.Since(start))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return r.fail(span, statusError(op, resp.StatusCode, raw))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return r.fail(span, errs.New(op, errs.CodeTransport, errs.WithMessage("read body"), errs.WithCause(err)))
	}
	if msg := embeddedError(raw); msg != "" {
		return r.fail(span, errs.New(op, errs.CodeExchange, errs.WithHTTP(resp.StatusCode), errs.WithRawMessage(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return r.fail(span, errs.New(op, errs.CodeDecode, errs.WithHTTP(resp.StatusCode), errs.WithCause(err)))
	}
	return nil
}

func (r *RESTClient) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	r.logger.Debug().Err(err).Msg("rest request failed")
	return err
}

func statusError(op string, status int, raw []byte) error {
	code := errs.CodeExchange
	switch {
	case status == http.StatusTooManyRequests:
		code = errs.CodeRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		code = errs.CodeAuth
	}
	msg := embeddedError(raw)
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	opts := []errs.Option{errs.WithHTTP(status), errs.WithRawMessage(msg)}
	if msg == "ORDER_DOES_NOT_EXIST" {
		opts = append(opts, errs.WithCanonicalCode(errs.CanonicalOrderNotFound))
	}
	return errs.New(op, code, opts...)
}

// embeddedError extracts {"error": "..."} from an object body.
func embeddedError(raw []byte) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ""
	}
	var body wire.ErrorBody
	if err := json.Unmarshal(trimmed, &body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.Error)
}
