package wire

import (
	"github.com/shopspring/decimal"
)

// RestOrder is the signed order body of POST /orders and POST /orders/{id}.
type RestOrder struct {
	Maker         string  `json:"maker"`
	IsBuy         bool    `json:"is_buy"`
	Instrument    string  `json:"instrument"`
	LimitPrice    string  `json:"limit_price"`
	Amount        string  `json:"amount"`
	Salt          string  `json:"salt"`
	Signature     string  `json:"signature"`
	PostOnly      bool    `json:"post_only"`
	ReduceOnly    bool    `json:"reduce_only"`
	ClosePosition bool    `json:"close_position"`
	Timestamp     string  `json:"timestamp"`
	Trigger       *string `json:"trigger,omitempty"`
	Stop          *string `json:"stop,omitempty"`
}

// RestWithdraw is the signed body of POST /withdraw.
type RestWithdraw struct {
	Account    string  `json:"account"`
	Collateral string  `json:"collateral"`
	To         string  `json:"to"`
	Amount     string  `json:"amount"`
	Salt       string  `json:"salt"`
	Signature  string  `json:"signature"`
	Data       *string `json:"data,omitempty"`
}

// CancelAllOrdersFilter is the optional body of DELETE /orders-all.
type CancelAllOrdersFilter struct {
	InstrumentType string `json:"instrument_type,omitempty"`
	Asset          string `json:"asset,omitempty"`
}

// ErrorBody is the error shape of every REST endpoint.
type ErrorBody struct {
	Error string `json:"error"`
}

// OrderInfo is an order as returned by the REST API.
type OrderInfo struct {
	OrderID             string `json:"order_id"`
	Account             string `json:"account"`
	InstrumentID        string `json:"instrument_id"`
	InstrumentName      string `json:"instrument_name"`
	InstrumentType      string `json:"instrument_type"`
	OrderType           string `json:"order_type"`
	Side                string `json:"side"`
	Amount              string `json:"amount"`
	Price               string `json:"price"`
	AvgPrice            string `json:"avg_price,omitempty"`
	Filled              string `json:"filled"`
	OrderStatus         string `json:"order_status"`
	PostOnly            *bool  `json:"post_only,omitempty"`
	ReduceOnly          *bool  `json:"reduce_only,omitempty"`
	InitialMargin       string `json:"initial_margin,omitempty"`
	OptionType          string `json:"option_type,omitempty"`
	IV                  string `json:"iv,omitempty"`
	Expiry              string `json:"expiry,omitempty"`
	Strike              string `json:"strike,omitempty"`
	CreatedTimestamp    string `json:"created_timestamp,omitempty"`
	Timestamp           string `json:"timestamp"`
	SystemType          string `json:"system_type"`
	TimeInForce         string `json:"time_in_force,omitempty"`
	Stop                string `json:"stop,omitempty"`
	Trigger             string `json:"trigger,omitempty"`
	ClosePosition       *bool  `json:"close_position,omitempty"`
	PartialPosition     *bool  `json:"partial_position,omitempty"`
	IsolatedMargin      string `json:"isolated_margin,omitempty"`
	ParentOrderID       string `json:"parent_order_id,omitempty"`
	SelfTradePrevention string `json:"self_trade_prevention,omitempty"`
}

// Greeks of an option market.
type Greeks struct {
	Delta string `json:"delta"`
	Theta string `json:"theta"`
	Gamma string `json:"gamma"`
	Rho   string `json:"rho"`
	Vega  string `json:"vega"`
	IV    string `json:"iv"`
}

// MarketInfo describes a listed instrument. Option-only fields are empty for perpetuals.
type MarketInfo struct {
	InstrumentID     string          `json:"instrument_id"`
	InstrumentName   string          `json:"instrument_name"`
	InstrumentType   string          `json:"instrument_type"`
	UnderlyingAsset  string          `json:"underlying_asset"`
	QuoteAsset       string          `json:"quote_asset"`
	PriceStep        decimal.Decimal `json:"price_step"`
	AmountStep       decimal.Decimal `json:"amount_step"`
	MinOrderValue    string          `json:"min_order_value"`
	MaxOrderValue    string          `json:"max_order_value"`
	MaxNotionalValue string          `json:"max_notional_value"`
	MarkPrice        string          `json:"mark_price"`
	IndexPrice       string          `json:"index_price"`
	IsActive         bool            `json:"is_active"`
	MaxLeverage      string          `json:"max_leverage,omitempty"`
	ForwardPrice     string          `json:"forward_price,omitempty"`
	OptionType       string          `json:"option_type,omitempty"`
	Expiry           string          `json:"expiry,omitempty"`
	Strike           string          `json:"strike,omitempty"`
	Greeks           *Greeks         `json:"greeks,omitempty"`
}

// CollateralInfo is one collateral balance of an account.
type CollateralInfo struct {
	CollateralAsset        string `json:"collateral_asset"`
	Balance                string `json:"balance"`
	AvailableBalance       string `json:"available_balance"`
	WithdrawableBalance    string `json:"withdrawable_balance"`
	MarginValue            string `json:"margin_value"`
	CollateralValue        string `json:"collateral_value"`
	CollateralYieldBearing bool   `json:"collateral_yield_bearing"`
}

// SigningKeyInfo is a registered signing key.
type SigningKeyInfo struct {
	SigningKey       string `json:"signing_key"`
	Expiry           string `json:"expiry"`
	CreatedTimestamp string `json:"created_timestamp"`
}

// APIKeyInfo is a registered API key.
type APIKeyInfo struct {
	APIKey           string `json:"api_key"`
	ReadOnly         bool   `json:"read_only"`
	CreatedTimestamp string `json:"created_timestamp"`
}

// FeeStructureInfo is the fee schedule of one asset and instrument type.
type FeeStructureInfo struct {
	Asset          string `json:"asset"`
	InstrumentType string `json:"instrument_type"`
	TakerFee       string `json:"taker_fee"`
	MakerFee       string `json:"maker_fee"`
}

// LeverageInfo is the configured leverage of one instrument.
type LeverageInfo struct {
	InstrumentID string `json:"instrument_id"`
	Leverage     string `json:"leverage"`
	MarginType   string `json:"margin_type"`
}

// ManualWithdrawalInfo is a pending manual withdrawal.
type ManualWithdrawalInfo struct {
	Account      string `json:"account"`
	Amount       string `json:"amount"`
	ChainID      string `json:"chain_id"`
	Collateral   string `json:"collateral"`
	WithdrawalID string `json:"withdrawal_id"`
	To           string `json:"to"`
	Label        string `json:"label"`
}

// Account is the body of GET /account.
type Account struct {
	Account           string                 `json:"account"`
	Username          string                 `json:"username"`
	AccountType       string                 `json:"account_type"`
	Portfolio         bool                   `json:"portfolio"`
	Equity            string                 `json:"equity"`
	Balance           string                 `json:"balance"`
	Credit            string                 `json:"credit"`
	Credited          bool                   `json:"credited"`
	Collaterals       []CollateralInfo       `json:"collaterals"`
	AvailableBalance  string                 `json:"available_balance"`
	InitialMargin     string                 `json:"initial_margin"`
	MaintenanceMargin string                 `json:"maintenance_margin"`
	EmailAddress      string                 `json:"email_address"`
	InLiquidation     bool                   `json:"in_liquidation"`
	ReferralBonus     float64                `json:"referral_bonus"`
	HasBeenReferred   bool                   `json:"has_been_referred"`
	Referrer          string                 `json:"referrer,omitempty"`
	Permissions       []string               `json:"permissions,omitempty"`
	Positions         []Position             `json:"positions"`
	SigningKeys       []SigningKeyInfo       `json:"signing_keys"`
	APIKeys           []APIKeyInfo           `json:"api_keys"`
	FeeStructures     []FeeStructureInfo     `json:"fee_structures"`
	Leverages         []LeverageInfo         `json:"leverages"`
	ManualMode        bool                   `json:"manual_mode"`
	ManualWithdrawals []ManualWithdrawalInfo `json:"manual_withdrawals"`
}

// PortfolioGreeks aggregates greeks per asset.
type PortfolioGreeks struct {
	Asset string `json:"asset"`
	Delta string `json:"delta"`
	Theta string `json:"theta"`
	Gamma string `json:"gamma"`
	Rho   string `json:"rho"`
	Vega  string `json:"vega"`
}

// UsedMarginInfo is the margin usage of a portfolio.
type UsedMarginInfo struct {
	Used    string `json:"used"`
	Balance string `json:"balance"`
}

// Portfolio is the body of GET /portfolio.
type Portfolio struct {
	Balance      string            `json:"balance"`
	PnL          string            `json:"pnl"`
	RealizedPnL  string            `json:"realized_pnl"`
	ProfitFactor string            `json:"profit_factor"`
	WinRate      string            `json:"win_rate"`
	SharpeRatio  string            `json:"sharpe_ratio"`
	Greeks       []PortfolioGreeks `json:"greeks"`
	UserMargin   UsedMarginInfo    `json:"user_margin"`
}

// CancelOrderResult is the body of DELETE /orders/{id}.
type CancelOrderResult struct {
	OrderID string `json:"order_id"`
}

// CancelAllOrdersResult is the body of DELETE /orders-all.
type CancelAllOrdersResult struct {
	Success  bool     `json:"success"`
	OrderIDs []string `json:"order_ids"`
}

// WithdrawResult is the body of POST /withdraw.
type WithdrawResult struct {
	Success bool `json:"success"`
}
