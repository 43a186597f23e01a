package models

// Exchange identifies one of the supported market-data providers.
type Exchange string

const (
	BinanceFutures Exchange = "binance_futures"
	BybitLinear    Exchange = "bybit_linear"
)

// Ticker is a closed enumeration of the instruments this service subscribes
// to. Instruments are supplied by configuration, never discovered.
type Ticker string

const (
	BTCUSDT Ticker = "BTCUSDT"
	ETHUSDT Ticker = "ETHUSDT"
	SOLUSDT Ticker = "SOLUSDT"
	LTCUSDT Ticker = "LTCUSDT"
)

// Tickers lists every supported instrument.
var Tickers = []Ticker{BTCUSDT, ETHUSDT, SOLUSDT, LTCUSDT}

// ParseTicker maps a configured symbol string onto the closed Ticker set.
func ParseTicker(s string) (Ticker, bool) {
	for _, t := range Tickers {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Symbol returns the exchange-native symbol string. Binance stream names use
// the lowercase form, Bybit topics the uppercase one.
func (t Ticker) Symbol(exchange Exchange) string {
	if exchange == BinanceFutures {
		return lower(string(t))
	}
	return string(t)
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

// Timeframe is a closed enumeration of candle bucket sizes.
type Timeframe string

const (
	M1  Timeframe = "1m"
	M3  Timeframe = "3m"
	M5  Timeframe = "5m"
	M15 Timeframe = "15m"
	M30 Timeframe = "30m"
)

// Timeframes lists every supported candle interval.
var Timeframes = []Timeframe{M1, M3, M5, M15, M30}

// ParseTimeframe maps a configured interval string onto the closed set.
func ParseTimeframe(s string) (Timeframe, bool) {
	for _, tf := range Timeframes {
		if string(tf) == s {
			return tf, true
		}
	}
	return "", false
}

// BinanceInterval returns the interval string used by Binance kline streams.
func (tf Timeframe) BinanceInterval() string {
	return string(tf)
}

// BybitInterval returns the interval string used by Bybit kline topics,
// which drop the minute suffix ("1m" subscribes as "1").
func (tf Timeframe) BybitInterval() string {
	return string(tf[:len(tf)-1])
}

// TimeframeFromBybitInterval resolves the interval reported inside a Bybit
// kline payload back to the canonical timeframe.
func TimeframeFromBybitInterval(interval string) (Timeframe, bool) {
	return ParseTimeframe(interval + "m")
}

// StreamKind distinguishes the two logical subscription flavours.
type StreamKind string

const (
	// KlineStream multiplexes many instrument/timeframe candle
	// subscriptions over one transport.
	KlineStream StreamKind = "kline"
	// DepthAndTradesStream carries interleaved order-book diffs and trade
	// ticks for a single instrument.
	DepthAndTradesStream StreamKind = "depth_and_trades"
)

// StreamType is the subscription key: it both opens a connection and routes
// emitted events to interested consumers. Equality is structural; the zero
// Timeframe is used for depth-and-trades keys.
type StreamType struct {
	Kind      StreamKind `json:"kind"`
	Exchange  Exchange   `json:"exchange"`
	Ticker    Ticker     `json:"ticker"`
	Timeframe Timeframe  `json:"timeframe,omitempty"`
}

// NewKlineStream builds the subscription key for a candle stream.
func NewKlineStream(exchange Exchange, ticker Ticker, tf Timeframe) StreamType {
	return StreamType{Kind: KlineStream, Exchange: exchange, Ticker: ticker, Timeframe: tf}
}

// NewDepthStream builds the subscription key for a depth-and-trades stream.
func NewDepthStream(exchange Exchange, ticker Ticker) StreamType {
	return StreamType{Kind: DepthAndTradesStream, Exchange: exchange, Ticker: ticker}
}
