package model

// Tick is a single ticker update for one symbol from an exchange feed.
// CumulativeVolume is the exchange's rolling counter, not a per-minute value.
type Tick struct {
	Symbol           string
	Price            float64
	CumulativeVolume float64
	TakerBuyVolume   float64
	EventTime        int64 // unix milliseconds
}

// BucketPoint is a one-minute price/volume sample for a symbol.
type BucketPoint struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
	Timestamp int64   `json:"timestamp"`
}

// Direction is the side a signal leans towards.
type Direction string

const (
	Long  Direction = "Long"
	Short Direction = "Short"
)

// Signal is a detected volume anomaly.
type Signal struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	SignalType Direction `json:"signal_type"`
	Price      float64   `json:"price"`
	Volume     float64   `json:"volume"`
	AvgVolume  float64   `json:"avg_volume"`
	Timestamp  int64     `json:"timestamp"`
	Reason     string    `json:"reason"`
}

// SignalUpdate is a live price/volume refresh for a symbol with an open signal.
type SignalUpdate struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
	Timestamp int64   `json:"timestamp"`
}

// SignalOutcome tracks how price moved after a signal fired.
type SignalOutcome struct {
	PriceAt15m     *float64 `json:"price_at_15m"`
	PriceAt30m     *float64 `json:"price_at_30m"`
	PriceAt60m     *float64 `json:"price_at_60m"`
	Success        bool     `json:"success"`
	MaxGainPercent float64  `json:"max_gain_percent"`
}

// SignalRecord is one ledger entry.
type SignalRecord struct {
	Signal     Signal        `json:"signal"`
	Outcome    SignalOutcome `json:"outcome"`
	RecordedAt int64         `json:"recorded_at"` // unix seconds
}

// Stats summarises the ledger.
type Stats struct {
	TotalSignals int     `json:"total_signals"`
	WinRate      float64 `json:"win_rate"`
	TopGainer    string  `json:"top_gainer"`
}

// PriceQty is one order book level.
type PriceQty struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

// OrderBook is a depth snapshot, bids descending and asks ascending.
type OrderBook struct {
	Symbol string
	Bids   []PriceQty
	Asks   []PriceQty
}

// OpenInterest is the open interest for a futures symbol in base units.
type OpenInterest struct {
	Symbol string
	Value  float64
	Time   int64
}
