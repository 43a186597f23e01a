package models

import "encoding/json"

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// BINANCE ///////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// BinanceEnvelope is the combined-stream wrapper. Only the stream name is
// decoded up front; the payload stays raw until the stream name has chosen
// a concrete parser.
type BinanceEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// BinanceDepthDiff mirrors the futures diff depth websocket event. Price
// levels arrive as ["price","qty"] string pairs.
type BinanceDepthDiff struct {
	Event             string     `json:"e"`
	EventTime         int64      `json:"E"`
	Time              int64      `json:"T"`
	Symbol            string     `json:"s"`
	FirstUpdateID     int64      `json:"U"`
	FinalUpdateID     int64      `json:"u"`
	PrevFinalUpdateID int64      `json:"pu"`
	Bids              [][]string `json:"b"`
	Asks              [][]string `json:"a"`
}

// BinanceAggTrade mirrors the futures aggregated trade websocket event.
type BinanceAggTrade struct {
	Event  string `json:"e"`
	Time   int64  `json:"T"`
	Symbol string `json:"s"`
	Price  string `json:"p"`
	Qty    string `json:"q"`
	IsSell bool   `json:"m"`
}

// BinanceKlineEvent mirrors the futures kline websocket event.
type BinanceKlineEvent struct {
	Event  string           `json:"e"`
	Symbol string           `json:"s"`
	Kline  BinanceKlineData `json:"k"`
}

// BinanceKlineData is the candle body inside a kline event.
type BinanceKlineData struct {
	Start          int64  `json:"t"`
	Symbol         string `json:"s"`
	Interval       string `json:"i"`
	Open           string `json:"o"`
	Close          string `json:"c"`
	High           string `json:"h"`
	Low            string `json:"l"`
	Volume         string `json:"v"`
	TakerBuyVolume string `json:"V"`
	Closed         bool   `json:"x"`
}

// BinanceDepthSnapshot mirrors the /fapi/v1/depth REST response. The T field
// is the transaction time the snapshot was taken at.
type BinanceDepthSnapshot struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	EventTime    int64      `json:"E"`
	Time         int64      `json:"T"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}
