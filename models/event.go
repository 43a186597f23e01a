package models

// Event is the consolidated output consumed by the presentation layer. The
// concrete types below form a closed set; consumers switch on them.
type Event interface {
	// Stream returns the subscription key the event belongs to.
	Stream() StreamType
}

// ConnectedEvent signals that a stream's transport was established.
type ConnectedEvent struct {
	Sub       StreamType `json:"stream"`
	SessionID string     `json:"session_id"`
}

func (e ConnectedEvent) Stream() StreamType { return e.Sub }

// DisconnectedEvent signals that a stream's transport was lost or could not
// be established. The owning task retries after a fixed backoff.
type DisconnectedEvent struct {
	Sub    StreamType `json:"stream"`
	Reason string     `json:"reason"`
}

func (e DisconnectedEvent) Stream() StreamType { return e.Sub }

// DepthEvent carries the reconciled book view, every trade buffered since
// the previous accepted diff, and feed latency stats.
type DepthEvent struct {
	Sub     StreamType  `json:"stream"`
	Time    int64       `json:"time"`
	Latency FeedLatency `json:"latency"`
	Book    Depth       `json:"book"`
	Trades  []Trade     `json:"trades"`
}

func (e DepthEvent) Stream() StreamType { return e.Sub }

// KlineEvent carries one normalized candle routed to its canonical
// timeframe.
type KlineEvent struct {
	Sub       StreamType `json:"stream"`
	Timeframe Timeframe  `json:"timeframe"`
	Kline     Kline      `json:"kline"`
}

func (e KlineEvent) Stream() StreamType { return e.Sub }
