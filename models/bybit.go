package models

import "encoding/json"

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// BYBIT /////////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// BybitEnvelope is the v5 public stream wrapper. Topic and type are decoded
// up front, the data payload stays raw until the topic has chosen a parser.
// Cts is the match-engine timestamp attached to orderbook messages.
type BybitEnvelope struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	Ts    int64           `json:"ts"`
	Cts   int64           `json:"cts"`
	Data  json.RawMessage `json:"data"`
}

// BybitDepthData is the orderbook payload, shared by snapshot and delta
// messages. Levels arrive as ["price","qty"] string pairs.
type BybitDepthData struct {
	Symbol   string     `json:"s"`
	Bids     [][]string `json:"b"`
	Asks     [][]string `json:"a"`
	UpdateID int64      `json:"u"`
	Seq      int64      `json:"seq"`
}

// BybitTrade is one entry of a publicTrade payload.
type BybitTrade struct {
	Time   int64  `json:"T"`
	Symbol string `json:"s"`
	Side   string `json:"S"`
	Qty    string `json:"v"`
	Price  string `json:"p"`
}

// BybitKlineData is one entry of a kline payload. Bybit reports only total
// volume, so normalized candles carry the no-split sentinel.
type BybitKlineData struct {
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	Interval string `json:"interval"`
	Open     string `json:"open"`
	Close    string `json:"close"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Volume   string `json:"volume"`
	Turnover string `json:"turnover"`
	Confirm  bool   `json:"confirm"`
}

// BybitAPIResponse is the common v5 REST wrapper.
type BybitAPIResponse struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// BybitKlineResult is the /v5/market/kline result body. Rows are arrays of
// strings: [start, open, high, low, close, volume, turnover].
type BybitKlineResult struct {
	Symbol   string     `json:"symbol"`
	Category string     `json:"category"`
	List     [][]string `json:"list"`
}

// BybitInstrumentsResult is the /v5/market/instruments-info result body,
// trimmed to the price filter this service needs.
type BybitInstrumentsResult struct {
	List []BybitInstrument `json:"list"`
}

// BybitInstrument carries the tick size metadata for one symbol.
type BybitInstrument struct {
	Symbol      string `json:"symbol"`
	PriceFilter struct {
		TickSize string `json:"tickSize"`
	} `json:"priceFilter"`
}
