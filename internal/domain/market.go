package domain

import "time"

// Market identifies a derivative market on the trading venue.
type Market struct {
	MarketID string // venue market hash
	Ticker   string // e.g. "ATOM/USDT PERP"
	Asset    string // base asset symbol, lowercase
}

// Candle is one OHLCV bar from the venue's historical data.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// VenueTrade is one executed trade from the venue's public history,
// used to detect whale activity.
type VenueTrade struct {
	Price    float64
	Quantity float64
	Receiver string // receiving address; exchange deposits read as sell pressure
}

// OrderRequest is a market order submission to the venue.
type OrderRequest struct {
	MarketID       string
	TradingAddress string
	Direction      Direction
	Quantity       float64
	Price          float64
}

// BridgeRequest moves funds from the custody chain to the trading chain.
type BridgeRequest struct {
	FromAddress string
	ToAddress   string
	Amount      float64 // ATOM
}
