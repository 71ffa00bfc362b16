package wire

import (
	"github.com/shopspring/decimal"
)

// PriceLevel is one side quote of a ticker, with option greeks where applicable.
type PriceLevel struct {
	Price  string `json:"price"`
	Amount string `json:"amount,omitempty"`
	Delta  string `json:"delta,omitempty"`
	Theta  string `json:"theta,omitempty"`
	Gamma  string `json:"gamma,omitempty"`
	Rho    string `json:"rho,omitempty"`
	Vega   string `json:"vega,omitempty"`
	IV     string `json:"iv,omitempty"`
}

// Ticker is the ticker of one instrument.
type Ticker struct {
	InstrumentID    string     `json:"instrument_id"`
	InstrumentName  string     `json:"instrument_name"`
	InstrumentType  string     `json:"instrument_type"`
	FundingRate     string     `json:"funding_rate,omitempty"`
	NextFundingRate string     `json:"next_funding_rate,omitempty"`
	Mark            PriceLevel `json:"mark"`
	Bid             PriceLevel `json:"bid"`
	Ask             PriceLevel `json:"ask"`
}

// TickerData is pushed on ticker and markprice channels.
type TickerData struct {
	Timestamp string   `json:"timestamp"`
	Tickers   []Ticker `json:"tickers"`
}

// BookTicker is the top of book of one instrument.
type BookTicker struct {
	InstrumentID   string     `json:"instrument_id"`
	InstrumentName string     `json:"instrument_name"`
	InstrumentType string     `json:"instrument_type"`
	Bid            PriceLevel `json:"bid"`
	Ask            PriceLevel `json:"ask"`
}

// BookTickerData is pushed on book-ticker channels.
type BookTickerData struct {
	Timestamp string       `json:"timestamp"`
	Tickers   []BookTicker `json:"tickers"`
}

// OrderBookData is an order book snapshot or update. Levels are
// [price, amount, iv] string triples.
type OrderBookData struct {
	Type           string     `json:"type"`
	InstrumentID   string     `json:"instrument_id"`
	InstrumentName string     `json:"instrument_name"`
	InstrumentType string     `json:"instrument_type"`
	Bids           [][]string `json:"bids"`
	Asks           [][]string `json:"asks"`
	LastUpdated    string     `json:"last_updated"`
	Checksum       string     `json:"checksum"`
}

// Level is a parsed book level.
type Level struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// BidLevels parses the bid side, skipping malformed entries.
func (o OrderBookData) BidLevels() []Level { return parseLevels(o.Bids) }

// AskLevels parses the ask side, skipping malformed entries.
func (o OrderBookData) AskLevels() []Level { return parseLevels(o.Asks) }

func parseLevels(raw [][]string) []Level {
	out := make([]Level, 0, len(raw))
	for _, entry := range raw {
		if len(entry) < 2 {
			continue
		}
		price, err := decimal.NewFromString(entry[0])
		if err != nil {
			continue
		}
		amount, err := decimal.NewFromString(entry[1])
		if err != nil {
			continue
		}
		out = append(out, Level{Price: price, Amount: amount})
	}
	return out
}

// IndexData is pushed on index channels and returned by GET /index.
type IndexData struct {
	Price     decimal.Decimal `json:"price"`
	Timestamp string          `json:"timestamp"`
}

// TradeData is a public trade.
type TradeData struct {
	TradeID          string `json:"trade_id"`
	InstrumentID     string `json:"instrument_id"`
	InstrumentName   string `json:"instrument_name"`
	InstrumentType   string `json:"instrument_type"`
	Side             string `json:"side"`
	Price            string `json:"price"`
	Amount           string `json:"amount,omitempty"`
	CreatedTimestamp string `json:"created_timestamp"`
}

// Order is an account order as pushed on the orders channel.
type Order struct {
	OrderID          string `json:"order_id"`
	Account          string `json:"account"`
	InstrumentID     string `json:"instrument_id"`
	InstrumentName   string `json:"instrument_name"`
	InstrumentType   string `json:"instrument_type"`
	OrderType        string `json:"order_type"`
	Side             string `json:"side"`
	Price            string `json:"price"`
	Amount           string `json:"amount"`
	Filled           string `json:"filled"`
	OrderStatus      string `json:"order_status"`
	CreatedTimestamp string `json:"created_timestamp"`
	SystemType       string `json:"system_type"`
}

// OrdersData is pushed on the orders channel.
type OrdersData struct {
	Timestamp string  `json:"timestamp"`
	Orders    []Order `json:"orders"`
}

// Fill is one execution of an account order.
type Fill struct {
	TradeID          string `json:"trade_id"`
	OrderID          string `json:"order_id"`
	InstrumentID     string `json:"instrument_id"`
	InstrumentName   string `json:"instrument_name"`
	InstrumentType   string `json:"instrument_type"`
	Price            string `json:"price"`
	Side             string `json:"side"`
	Fees             string `json:"fees"`
	Filled           string `json:"filled"`
	OrderStatus      string `json:"order_status"`
	Liquidity        string `json:"liquidity"`
	CreatedTimestamp string `json:"created_timestamp"`
	SystemType       string `json:"system_type"`
}

// FillsData is pushed on the fills channel.
type FillsData struct {
	Timestamp string `json:"timestamp"`
	Fill      Fill   `json:"fill"`
}

// OptionData describes the option leg of a position.
type OptionData struct {
	Strike     string `json:"strike"`
	OptionType string `json:"option_type"`
	Expiry     string `json:"expiry"`
	IV         string `json:"iv"`
	Delta      string `json:"delta"`
	Theta      string `json:"theta"`
	Rho        string `json:"rho"`
	Vega       string `json:"vega"`
}

// Position is an open account position.
type Position struct {
	InstrumentID      string      `json:"instrument_id"`
	InstrumentName    string      `json:"instrument_name"`
	InstrumentType    string      `json:"instrument_type"`
	Amount            string      `json:"amount"`
	MarkPrice         string      `json:"mark_price"`
	Option            *OptionData `json:"option,omitempty"`
	Asset             string      `json:"asset"`
	Side              string      `json:"side"`
	AvgEntryPrice     string      `json:"avg_entry_price"`
	UnrealizedPnL     string      `json:"unrealized_pnl"`
	MaintenanceMargin string      `json:"maintenance_margin"`
}

// PositionsData is pushed on the positions channel.
type PositionsData struct {
	Timestamp string     `json:"timestamp"`
	Positions []Position `json:"positions"`
}

// OrderReply acknowledges create_order and edit_order.
type OrderReply struct {
	OrderID          string `json:"order_id"`
	Account          string `json:"account"`
	InstrumentID     string `json:"instrument_id"`
	InstrumentName   string `json:"instrument_name"`
	InstrumentType   string `json:"instrument_type"`
	Expiry           string `json:"expiry,omitempty"`
	Strike           string `json:"strike,omitempty"`
	OptionType       string `json:"option_type,omitempty"`
	OrderType        string `json:"order_type"`
	OrderStatus      string `json:"order_status"`
	Side             string `json:"side"`
	Amount           string `json:"amount"`
	Price            string `json:"price"`
	Filled           string `json:"filled"`
	InitialMargin    string `json:"initial_margin"`
	AvgPrice         string `json:"avg_price,omitempty"`
	CreatedTimestamp string `json:"created_timestamp"`
	Timestamp        string `json:"timestamp"`
	SystemType       string `json:"system_type"`
}

// CancelOrderReply acknowledges cancel_order.
type CancelOrderReply struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id"`
}

// CancelAllOrdersReply acknowledges cancel_all_orders.
type CancelAllOrdersReply struct {
	Success  bool     `json:"success"`
	OrderIDs []string `json:"order_ids"`
}

// StatusReply acknowledges auth with the account and its live subscriptions.
type StatusReply struct {
	Account       string   `json:"account"`
	Subscriptions []string `json:"subscriptions"`
}

// PingReply acknowledges ping.
type PingReply struct {
	Success   bool   `json:"success"`
	Timestamp string `json:"timestamp"`
}
