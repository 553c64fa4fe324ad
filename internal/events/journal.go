package events

import (
	"context"
	"math"
	"sync"

	"github.com/iotaledger/hive.go/core/safemath"
)

// DefaultJournalSize bounds the in-memory history.
const DefaultJournalSize = 256

// Stats are running totals over every event the journal has seen, not just the retained ones.
type Stats struct {
	Total     uint64          `json:"total"`
	ByKind    map[Kind]uint64 `json:"by_kind"`
	Deposited uint64          `json:"deposited"`
	Withdrawn uint64          `json:"withdrawn"`
	// Volume is deposits plus withdrawals; it saturates instead of wrapping.
	Volume uint64 `json:"volume"`
}

// Journal keeps a bounded history of events and running statistics.
type Journal struct {
	mu    sync.RWMutex
	ring  []Event
	next  int
	full  bool
	stats Stats
}

// NewJournal creates a journal retaining up to size events.
func NewJournal(size int) *Journal {
	if size <= 0 {
		size = DefaultJournalSize
	}
	return &Journal{ring: make([]Event, size), stats: Stats{ByKind: make(map[Kind]uint64)}}
}

// Emit implements Emitter.
func (j *Journal) Emit(_ context.Context, event Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.ring[j.next] = event
	j.next = (j.next + 1) % len(j.ring)
	if j.next == 0 {
		j.full = true
	}

	j.stats.Total++
	j.stats.ByKind[event.Kind]++
	switch event.Kind {
	case KindDeposit:
		j.stats.Deposited = saturatingAdd(j.stats.Deposited, event.Amount)
		j.stats.Volume = saturatingAdd(j.stats.Volume, event.Amount)
	case KindWithdraw:
		j.stats.Withdrawn = saturatingAdd(j.stats.Withdrawn, event.Amount)
		j.stats.Volume = saturatingAdd(j.stats.Volume, event.Amount)
	}
	return nil
}

// Recent returns up to limit events, newest first. limit <= 0 returns everything retained.
func (j *Journal) Recent(limit int) []Event {
	j.mu.RLock()
	defer j.mu.RUnlock()

	n := j.next
	if j.full {
		n = len(j.ring)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Event, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (j.next - i + len(j.ring)) % len(j.ring)
		out = append(out, j.ring[idx])
	}
	return out
}

// Stats returns a snapshot of the running totals.
func (j *Journal) Stats() Stats {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := j.stats
	out.ByKind = make(map[Kind]uint64, len(j.stats.ByKind))
	for k, v := range j.stats.ByKind {
		out.ByKind[k] = v
	}
	return out
}

func saturatingAdd(a, b uint64) uint64 {
	sum, err := safemath.SafeAdd(a, b)
	if err != nil {
		return math.MaxUint64
	}
	return sum
}
