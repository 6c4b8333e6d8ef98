// Package cursor tracks the fetch position for one (chain, event) ingestion stream.
//
// Two policies exist:
//
//   - ForwardSequential follows a monotonically increasing sequence number
//     (the message nonce). The next value to fetch is always >= the last value
//     persisted, and the starting value is re-derived from storage on every
//     process start via SeedFromLast.
//
//   - RateLimited walks block ranges toward the chain tip, pacing fetch volume
//     with a minimum interval between chunks. It carries no sequence identity;
//     resumption is governed by whatever the sync engine persists.
//
// Cursors are in-memory only. They are rebuilt from persisted state at startup
// and never written back directly by this package.
package cursor

import (
	"time"

	"github.com/vietddude/scraper/internal/core/domain"
)

// Kind discriminates the two cursor policies.
type Kind string

const (
	KindForwardSequential Kind = "forward_sequential"
	KindRateLimited       Kind = "rate_limited"
)

// Range is an inclusive fetch window in the cursor's own coordinate space
// (nonces for ForwardSequential, block numbers for RateLimited).
type Range struct {
	From uint64
	To   uint64
}

// Len returns the number of positions covered by the range.
func (r Range) Len() uint64 {
	if r.To < r.From {
		return 0
	}
	return r.To - r.From + 1
}

// Cursor yields fetch windows and absorbs sync results.
type Cursor interface {
	Kind() Kind

	// Next returns the next window to fetch given the current chain tip.
	// ok is false when the cursor has nothing to do yet (caught up, or
	// pacing requires a wait).
	Next(tip uint64) (r Range, ok bool)

	// MarkSynced records the outcome of fetching r. lastStored is the highest
	// position actually persisted within r and stored is the record count;
	// both are zero for an empty window.
	MarkSynced(r Range, lastStored uint64, stored int)

	// Position returns the next position the cursor intends to fetch.
	Position() uint64
}

// SeedFromLast derives the ForwardSequential starting value from the highest
// persisted sequence number, or nil when no records exist.
//
// The last persisted record may not have been fully committed downstream, so
// the cursor starts one position before it and refetches; the store's upsert
// semantics make the overlap harmless. Subtraction saturates at zero.
func SeedFromLast(last *uint64) uint64 {
	if last == nil || *last == 0 {
		return 0
	}
	return *last - 1
}

const defaultChunkSize = 100

// ForwardSequential implements the sequence-number cursor policy.
type ForwardSequential struct {
	pos      uint64
	chunk    uint32
	interval time.Duration

	lastAttempt time.Time
	idle        bool

	now func() time.Time
}

// NewForwardSequential creates a sequence cursor starting at seed.
func NewForwardSequential(settings domain.IndexSettings, seed uint64) *ForwardSequential {
	chunk := settings.ChunkSize
	if chunk == 0 {
		chunk = defaultChunkSize
	}
	return &ForwardSequential{
		pos:      seed,
		chunk:    chunk,
		interval: settings.Interval,
		now:      time.Now,
	}
}

func (f *ForwardSequential) Kind() Kind { return KindForwardSequential }

// Next ignores the chain tip: sequence space has no observable tip, so the
// cursor probes ahead and relies on empty fetches to detect the frontier.
// After an empty fetch it waits out the poll interval before probing again.
func (f *ForwardSequential) Next(_ uint64) (Range, bool) {
	if f.idle && f.now().Sub(f.lastAttempt) < f.interval {
		return Range{}, false
	}
	return Range{From: f.pos, To: f.pos + uint64(f.chunk) - 1}, true
}

// MarkSynced advances only past positions that were actually persisted.
// An empty window leaves the position untouched so nothing is skipped.
func (f *ForwardSequential) MarkSynced(_ Range, lastStored uint64, stored int) {
	f.lastAttempt = f.now()
	if stored > 0 && lastStored >= f.pos {
		f.pos = lastStored + 1
		f.idle = false
		return
	}
	f.idle = true
}

func (f *ForwardSequential) Position() uint64 { return f.pos }

// RateLimited implements the block-range cursor policy.
type RateLimited struct {
	pos      uint64
	chunk    uint32
	interval time.Duration

	lastFetch time.Time

	now func() time.Time
}

// NewRateLimited creates a block cursor starting at the configured height.
func NewRateLimited(settings domain.IndexSettings) *RateLimited {
	chunk := settings.ChunkSize
	if chunk == 0 {
		chunk = defaultChunkSize
	}
	return &RateLimited{
		pos:      settings.From,
		chunk:    chunk,
		interval: settings.Interval,
		now:      time.Now,
	}
}

func (r *RateLimited) Kind() Kind { return KindRateLimited }

// Next caps the window at the chain tip and enforces the minimum interval
// between chunks so catch-up never outpaces the configured rate.
func (r *RateLimited) Next(tip uint64) (Range, bool) {
	if r.pos > tip {
		return Range{}, false
	}
	if !r.lastFetch.IsZero() && r.now().Sub(r.lastFetch) < r.interval {
		return Range{}, false
	}
	to := r.pos + uint64(r.chunk) - 1
	if to > tip {
		to = tip
	}
	return Range{From: r.pos, To: to}, true
}

// MarkSynced advances past the whole window; empty block ranges are normal.
func (r *RateLimited) MarkSynced(rng Range, _ uint64, _ int) {
	r.lastFetch = r.now()
	if rng.To >= r.pos {
		r.pos = rng.To + 1
	}
}

func (r *RateLimited) Position() uint64 { return r.pos }
