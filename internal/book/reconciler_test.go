package book

import (
	"testing"

	"depthflow/models"
)

func snapshot(lastID int64) DepthUpdate {
	return DepthUpdate{
		LastUpdateID: lastID,
		Time:         1700000000000,
		Bids:         []models.Order{{Price: 100, Qty: 5}, {Price: 99.9, Qty: 3}},
		Asks:         []models.Order{{Price: 100.1, Qty: 4}, {Price: 100.2, Qty: 6}},
	}
}

func TestEvaluateBeforeSnapshot(t *testing.T) {
	r := NewReconciler()
	d := Diff{FirstID: 1, FinalID: 10}
	if got := r.Evaluate(d); got != DropDiff {
		t.Fatalf("expected DropDiff before snapshot, got %v", got)
	}
}

func TestEvaluateStaleDiff(t *testing.T) {
	r := NewReconciler()
	r.ApplySnapshot(snapshot(100))

	d := Diff{FirstID: 90, FinalID: 100}
	if got := r.Evaluate(d); got != DropDiff {
		t.Fatalf("expected DropDiff for final id <= snapshot id, got %v", got)
	}
}

func TestEvaluateGapAfterSnapshot(t *testing.T) {
	r := NewReconciler()
	r.ApplySnapshot(snapshot(100))

	d := Diff{FirstID: 150, FinalID: 160, PrevFinalID: 149}
	if got := r.Evaluate(d); got != NeedsResync {
		t.Fatalf("expected NeedsResync for gap after snapshot, got %v", got)
	}
}

func TestEvaluateFirstDiffCoversSnapshot(t *testing.T) {
	r := NewReconciler()
	r.ApplySnapshot(snapshot(500))

	// First diff straddles the snapshot id: 490 <= 501 <= 505.
	d := Diff{FirstID: 490, FinalID: 505, PrevFinalID: 489}
	if got := r.Evaluate(d); got != ApplyDiff {
		t.Fatalf("expected ApplyDiff for straddling first diff, got %v", got)
	}
}

func TestEvaluateContinuity(t *testing.T) {
	r := NewReconciler()
	r.ApplySnapshot(snapshot(500))

	first := Diff{FirstID: 501, FinalID: 505, PrevFinalID: 500}
	if got := r.Evaluate(first); got != ApplyDiff {
		t.Fatalf("expected ApplyDiff for first diff, got %v", got)
	}
	r.Apply(first)

	chained := Diff{FirstID: 506, FinalID: 510, PrevFinalID: 505}
	if got := r.Evaluate(chained); got != ApplyDiff {
		t.Fatalf("expected ApplyDiff for chained diff, got %v", got)
	}
	r.Apply(chained)

	broken := Diff{FirstID: 515, FinalID: 520, PrevFinalID: 514}
	if got := r.Evaluate(broken); got != Desync {
		t.Fatalf("expected Desync for broken chain, got %v", got)
	}
}

func TestApplyAdvancesCache(t *testing.T) {
	r := NewReconciler()
	r.ApplySnapshot(snapshot(500))

	d := Diff{
		FirstID:     501,
		FinalID:     505,
		PrevFinalID: 500,
		Update: DepthUpdate{
			Time: 1700000001000,
			Bids: []models.Order{{Price: 100, Qty: 7}},
			Asks: []models.Order{{Price: 100.1, Qty: 0}},
		},
	}
	bids, asks := r.Apply(d)

	if r.LastUpdateID() != 505 {
		t.Fatalf("expected last update id 505, got %d", r.LastUpdateID())
	}
	if len(bids) == 0 || bids[0].Price != 100 || bids[0].Qty != 7 {
		t.Fatalf("expected upserted best bid 100@7, got %+v", bids)
	}
	for _, a := range asks {
		if a.Price == 100.1 {
			t.Fatalf("expected ask 100.1 removed by zero-quantity level, got %+v", asks)
		}
	}
}

func TestSnapshotRearmsAlignment(t *testing.T) {
	r := NewReconciler()
	r.ApplySnapshot(snapshot(500))
	r.Apply(Diff{FirstID: 501, FinalID: 505, PrevFinalID: 500})

	// A fresh snapshot discards the continuity cursor; the next diff is
	// judged on range coverage alone.
	r.ApplySnapshot(snapshot(600))
	d := Diff{FirstID: 590, FinalID: 610, PrevFinalID: 589}
	if got := r.Evaluate(d); got != ApplyDiff {
		t.Fatalf("expected ApplyDiff after snapshot rearm, got %v", got)
	}
}

func TestBeginResyncGuard(t *testing.T) {
	r := NewReconciler()

	if !r.BeginResync() {
		t.Fatalf("expected first BeginResync to succeed")
	}
	if r.State() != AwaitingSnapshot {
		t.Fatalf("expected AwaitingSnapshot, got %v", r.State())
	}
	if r.BeginResync() {
		t.Fatalf("expected second BeginResync to be refused while awaiting")
	}

	r.SnapshotFailed()
	if r.State() != Idle {
		t.Fatalf("expected Idle after failed snapshot, got %v", r.State())
	}
	if !r.BeginResync() {
		t.Fatalf("expected BeginResync to succeed after failure")
	}

	r.ApplySnapshot(snapshot(100))
	if r.State() != Idle {
		t.Fatalf("expected Idle after snapshot applied, got %v", r.State())
	}
}

func TestSnapshotDiffSequence(t *testing.T) {
	r := NewReconciler()

	// Diffs arriving before the snapshot are dropped without state change.
	if got := r.Evaluate(Diff{FirstID: 480, FinalID: 485}); got != DropDiff {
		t.Fatalf("expected DropDiff pre-snapshot, got %v", got)
	}

	r.ApplySnapshot(snapshot(500))

	for i, d := range []Diff{
		{FirstID: 496, FinalID: 501, PrevFinalID: 495},
		{FirstID: 502, FinalID: 503, PrevFinalID: 501},
		{FirstID: 504, FinalID: 505, PrevFinalID: 503},
	} {
		if got := r.Evaluate(d); got != ApplyDiff {
			t.Fatalf("diff %d: expected ApplyDiff, got %v", i, got)
		}
		r.Apply(d)
	}

	if r.LastUpdateID() != 505 {
		t.Fatalf("expected final id 505, got %d", r.LastUpdateID())
	}
}
