// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resource accounts the memory attributable to one request's
// buffered results and analysis state, and evicts proactively before
// the hard budget is hit.
package resource

import (
	"errors"
	"sync"

	"github.com/ExactDoug/multi-llm-wrapper-sub003/pkg/types"
)

// ErrBudgetExceeded reports a breach that eviction could not relieve.
var ErrBudgetExceeded = errors.New("memory budget exceeded")

// perRecordOverhead approximates slice/struct bookkeeping per retained
// record, on top of its string payloads.
const perRecordOverhead = 96

// entry is one retained buffer. Entries are kept in arrival order so
// eviction can drop the oldest first.
type entry struct {
	id        string
	size      int64
	essential bool
}

// Tracker maintains a running byte estimate for one request. One
// orchestrator owns one Tracker; the mutex keeps accounting safe if a
// consumer inspects usage concurrently.
type Tracker struct {
	mu        sync.Mutex
	budget    int64
	threshold float64
	used      int64
	entries   []entry
	evictions int
}

// NewTracker builds a tracker for the given budget in bytes and evict
// threshold fraction. Non-positive inputs fall back to the documented
// defaults (10MB, 0.8).
func NewTracker(budget int64, threshold float64) *Tracker {
	if budget <= 0 {
		budget = 10 * 1024 * 1024
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.8
	}
	return &Tracker{budget: budget, threshold: threshold}
}

// Track accounts size bytes under id before the caller retains the
// buffer. Essential entries (partial results needed for the final
// summary) are never evicted. Crossing the threshold triggers eviction
// of the oldest non-essential entries; if the hard budget would still
// be exceeded, Track returns ErrBudgetExceeded and accounts nothing.
func (t *Tracker) Track(id string, size int64, essential bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.used+size > int64(t.threshold*float64(t.budget)) {
		t.evictLocked(t.used + size - int64(t.threshold*float64(t.budget)))
	}
	if t.used+size > t.budget {
		return ErrBudgetExceeded
	}

	t.entries = append(t.entries, entry{id: id, size: size, essential: essential})
	t.used += size
	return nil
}

// evictLocked drops the oldest non-essential entries until want bytes
// are freed or nothing evictable remains. Callers must hold mu.
func (t *Tracker) evictLocked(want int64) {
	var freed int64
	kept := t.entries[:0]
	for _, e := range t.entries {
		if freed < want && !e.essential {
			freed += e.size
			t.used -= e.size
			t.evictions++
			continue
		}
		kept = append(kept, e)
	}
	t.entries = kept
}

// MarkEvictable clears the essential flag on id, typically once a raw
// result has been scored and emitted and only its scores matter.
func (t *Tracker) MarkEvictable(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		if t.entries[i].id == id {
			t.entries[i].essential = false
			return
		}
	}
}

// Release decrements the accounting for id.
func (t *Tracker) Release(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.entries {
		if e.id == id {
			t.used -= e.size
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

// ReleaseAll drops every retained entry, used on cancellation and
// terminal failure.
func (t *Tracker) ReleaseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
	t.used = 0
}

// Used reports the current byte estimate.
func (t *Tracker) Used() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.used
}

// Evictions reports how many entries were proactively evicted.
func (t *Tracker) Evictions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evictions
}

// EstimateSize approximates the retained bytes of one search result:
// its string payloads plus fixed bookkeeping overhead.
func EstimateSize(r types.SearchResult) int64 {
	n := len(r.Title) + len(r.URL) + len(r.Description) +
		len(r.Age) + len(r.Domain) + len(r.Language)
	return int64(n) + perRecordOverhead
}
