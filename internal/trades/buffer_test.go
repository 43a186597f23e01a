package trades

import (
	"testing"

	"depthflow/models"
)

func TestFlushEmpty(t *testing.T) {
	b := NewBuffer()
	flushed, avg := b.Flush()
	if len(flushed) != 0 {
		t.Fatalf("expected no trades, got %d", len(flushed))
	}
	if avg != nil {
		t.Fatalf("expected nil latency with no trades, got %d", *avg)
	}
}

func TestFlushReturnsAndClears(t *testing.T) {
	b := NewBuffer()
	b.Add(models.Trade{Time: 1000, Price: 100, Qty: 1}, 1010)
	b.Add(models.Trade{Time: 1001, Price: 100.5, Qty: 2, IsSell: true}, 1021)
	b.Add(models.Trade{Time: 1002, Price: 101, Qty: 3}, 1032)

	if b.Len() != 3 {
		t.Fatalf("expected 3 buffered trades, got %d", b.Len())
	}

	flushed, avg := b.Flush()
	if len(flushed) != 3 {
		t.Fatalf("expected 3 flushed trades, got %d", len(flushed))
	}
	if flushed[1].IsSell != true || flushed[1].Price != 100.5 {
		t.Fatalf("expected trades flushed in arrival order, got %+v", flushed)
	}

	// Latencies 10, 20, 30 -> mean 20.
	if avg == nil || *avg != 20 {
		t.Fatalf("expected mean latency 20, got %v", avg)
	}

	if b.Len() != 0 {
		t.Fatalf("expected buffer cleared after flush, got %d", b.Len())
	}
	if _, avg := b.Flush(); avg != nil {
		t.Fatalf("expected latency samples cleared after flush")
	}
}
