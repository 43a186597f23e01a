package book

import "depthflow/models"

// SyncState tracks whether a snapshot fetch is outstanding. The reconciler
// refuses to start a second fetch while one is in flight, so concurrent
// resyncs cannot happen.
type SyncState int

const (
	Idle SyncState = iota
	AwaitingSnapshot
)

// Decision is the reconciler's verdict on one incoming diff.
type Decision int

const (
	// DropDiff: the diff is stale or cannot be aligned yet; no state change.
	DropDiff Decision = iota
	// ApplyDiff: continuity holds, the diff may be merged into the cache.
	ApplyDiff
	// NeedsResync: a gap exists between snapshot and diff stream; a fresh
	// snapshot must be fetched while evaluation continues on the old state.
	NeedsResync
	// Desync: continuity is unrecoverably broken; the connection must be
	// torn down and rebuilt from scratch.
	Desync
)

// Diff is a parsed incremental depth update keyed by its update-id range.
type Diff struct {
	FirstID     int64
	FinalID     int64
	PrevFinalID int64
	Update      DepthUpdate
}

// Reconciler aligns a REST snapshot with an incremental diff stream. A
// consumer joining mid-stream must not merge any diff whose predecessor is
// unknown, or the book silently corrupts; Evaluate encodes that alignment.
//
// prevID == 0 means "awaiting first snapshot/diff alignment": it is set on
// every snapshot application and becomes the diff's final id once the first
// diff after the snapshot is accepted.
type Reconciler struct {
	cache  *LocalDepthCache
	prevID int64
	state  SyncState
}

func NewReconciler() *Reconciler {
	return &Reconciler{cache: NewLocalDepthCache()}
}

// State reports whether a snapshot fetch is outstanding.
func (r *Reconciler) State() SyncState {
	return r.state
}

// LastUpdateID exposes the cache's current sequence position.
func (r *Reconciler) LastUpdateID() int64 {
	return r.cache.LastUpdateID
}

// BeginResync transitions Idle -> AwaitingSnapshot. It returns false when a
// fetch is already outstanding, in which case the caller must not start
// another one.
func (r *Reconciler) BeginResync() bool {
	if r.state == AwaitingSnapshot {
		return false
	}
	r.state = AwaitingSnapshot
	return true
}

// ApplySnapshot replaces the book with a fetched snapshot and rearms the
// first-diff alignment check.
func (r *Reconciler) ApplySnapshot(d DepthUpdate) {
	r.cache.Fetched(d)
	r.prevID = 0
	r.state = Idle
}

// SnapshotFailed returns to Idle without touching the book, so the next
// resync trigger can retry the fetch.
func (r *Reconciler) SnapshotFailed() {
	r.state = Idle
}

// Evaluate classifies a diff against the current book state. It never
// mutates the cache; an ApplyDiff verdict must be followed by Apply.
func (r *Reconciler) Evaluate(d Diff) Decision {
	lastID := r.cache.LastUpdateID

	// No snapshot has landed yet; nothing to align against.
	if lastID == 0 {
		return DropDiff
	}

	// Older than the current state: duplicate or late replay.
	if d.FinalID <= lastID {
		return DropDiff
	}

	// Either a gap between the snapshot and the first diff, or a diff whose
	// range does not cover the next expected id. Both clauses are
	// independently sufficient.
	if (r.prevID == 0 && d.FirstID > lastID+1) || lastID+1 > d.FinalID {
		return NeedsResync
	}

	if r.prevID == 0 || r.prevID == d.PrevFinalID {
		return ApplyDiff
	}

	return Desync
}

// Apply merges an accepted diff and returns the cropped, sorted book view
// for emission. Advances both the cache id and the continuity cursor.
func (r *Reconciler) Apply(d Diff) (bids, asks []models.Order) {
	d.Update.LastUpdateID = d.FinalID
	bids, asks = r.cache.UpdateLevels(d.Update)
	r.prevID = d.FinalID
	return bids, asks
}
