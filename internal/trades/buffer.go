package trades

import "depthflow/models"

// Buffer accumulates trade ticks and their arrival latencies between two
// consecutive accepted depth diffs. Trades are never emitted standalone; the
// owning connection task flushes the buffer into each depth event, coupling
// trade delivery cadence to depth delivery cadence.
//
// Buffer is not safe for concurrent use; each connection task owns its own.
type Buffer struct {
	trades    []models.Trade
	latencies []int64
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// Add appends a trade and records its arrival latency, wall clock at
// ingestion minus the exchange timestamp.
func (b *Buffer) Add(t models.Trade, recvTime int64) {
	b.trades = append(b.trades, t)
	b.latencies = append(b.latencies, recvTime-t.Time)
}

// Len reports the number of buffered trades.
func (b *Buffer) Len() int {
	return len(b.trades)
}

// Flush moves the whole buffer out and returns the arithmetic mean of the
// latencies recorded since the previous flush, or nil when no trades
// arrived. The buffer and the sample list are empty afterwards.
func (b *Buffer) Flush() ([]models.Trade, *int64) {
	flushed := b.trades
	b.trades = nil

	var avg *int64
	if len(b.latencies) > 0 {
		var sum int64
		for _, l := range b.latencies {
			sum += l
		}
		mean := sum / int64(len(b.latencies))
		avg = &mean
	}
	b.latencies = b.latencies[:0]

	return flushed, avg
}
