package models

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// GENERAL ///////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// Order represents a single resting price level. Qty == 0 is a tombstone:
// it means "remove this level" inside a diff and never a real resting size.
type Order struct {
	Price float32 `json:"price"`
	Qty   float32 `json:"qty"`
}

// Depth is an immutable point-in-time view of the order book, as emitted to
// consumers alongside depth events. Bids are sorted descending by price,
// asks ascending.
type Depth struct {
	Time int64   `json:"time"`
	Bids []Order `json:"bids"`
	Asks []Order `json:"asks"`
}

// Trade is a single executed trade tick, exchange-tagged at ingestion.
type Trade struct {
	Time   int64   `json:"time"`
	IsSell bool    `json:"is_sell"`
	Price  float32 `json:"price"`
	Qty    float32 `json:"qty"`
}

// VolumeNoSplit marks a kline whose exchange reports only total volume.
// When Volume.Buy equals this sentinel, Volume.Sell carries the total and
// consumers must not interpret the pair as a taker split.
const VolumeNoSplit float32 = -1.0

// KlineVolume is the buy/sell split of a candle's traded volume.
type KlineVolume struct {
	Buy  float32 `json:"buy"`
	Sell float32 `json:"sell"`
}

// Kline is the canonical candle produced by the normalizers. Time is the
// bucket open in milliseconds.
type Kline struct {
	Time   uint64      `json:"time"`
	Open   float32     `json:"open"`
	High   float32     `json:"high"`
	Low    float32     `json:"low"`
	Close  float32     `json:"close"`
	Volume KlineVolume `json:"volume"`
}

// FeedLatency is an observability sample attached to depth events. It is
// never persisted. TradeLatency is nil when no trades arrived between two
// consecutive depth updates.
type FeedLatency struct {
	Time         int64  `json:"time"`
	DepthLatency int64  `json:"depth_latency"`
	TradeLatency *int64 `json:"trade_latency,omitempty"`
}
