package model

import "time"

// -----------------------------------------------------------------------------
// Reference Data Types
// -----------------------------------------------------------------------------

// Asset class identifiers, as stored in ticker metadata.
const (
	AssetStock     = "stock"
	AssetETF       = "etf"
	AssetIndex     = "index"
	AssetCrypto    = "crypto"
	AssetForex     = "forex"
	AssetCFD       = "cfd"
	AssetCommodity = "commodity"
)

// Ticker holds metadata for a tradeable instrument.
type Ticker struct {
	Code     string // Primary key (e.g., "AAPL", "BTC-USD")
	Name     string // Display name
	Type     string // Asset class (see Asset* constants)
	Exchange string // Listing exchange (e.g., "NASDAQ")
	Currency string // Quote currency (e.g., "USD")
	Enabled  bool   // False disables streaming and monitoring
}

// Split is one historical stock split for an equity.
type Split struct {
	Code          string    // Ticker code
	EffectiveDate time.Time // Date the split took effect
	Ratio         float64   // Price adjustment factor (e.g., 0.25 for a 4:1 split)
}

// Candle is one stored OHLC bar for a symbol.
type Candle struct {
	Symbol    string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	Timestamp time.Time // Bar time (period end)
}

// -----------------------------------------------------------------------------
// Streaming Types
// -----------------------------------------------------------------------------

// RawTick is one unprocessed price update from the upstream feed.
type RawTick struct {
	Symbol    string
	Ask       float64
	Bid       float64
	Timestamp int64 // Upstream timestamp (ms since epoch)
}

// Quote is a raw tick after asset-class scaling, split adjustment, and
// change computation against the cached reference candle.
//
// OHLC fields carry the reference candle when one was available and are
// zero otherwise (mirrored by omitempty on the wire).
type Quote struct {
	Symbol        string    `json:"symbol"`
	Ask           float64   `json:"ask"`
	Bid           float64   `json:"bid"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	Open          float64   `json:"open,omitempty"`
	High          float64   `json:"high,omitempty"`
	Low           float64   `json:"low,omitempty"`
	Close         float64   `json:"close,omitempty"`
	Timestamp     int64     `json:"timestamp"`  // Upstream timestamp (ms since epoch)
	ReceivedAt    time.Time `json:"receivedAt"` // Local receive time
}
