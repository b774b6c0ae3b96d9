package memory

import (
	"context"
	"sync"
	"time"

	"takerflow/internal/aggregation"
	"takerflow/internal/window"
)

// Store keeps bucket records in process memory. Used for local runs and tests.
type Store struct {
	mu      sync.Mutex
	records []window.Record
	ids     map[string]struct{}
}

func NewStore() *Store {
	return &Store{
		records: make([]window.Record, 0),
		ids:     make(map[string]struct{}),
	}
}

// InsertBucket appends rec unless a record with the same non-empty ID exists.
func (m *Store) InsertBucket(_ context.Context, rec window.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID != "" {
		if _, dup := m.ids[rec.ID]; dup {
			return nil
		}
		m.ids[rec.ID] = struct{}{}
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *Store) SumSince(_ context.Context, since time.Time) (aggregation.Vector, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sum aggregation.Vector
	var rows int64
	for _, rec := range m.records {
		if rec.TradeTime.Before(since) {
			continue
		}
		sum = sum.Add(rec.Data)
		rows++
	}
	return sum, rows, nil
}

func (m *Store) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.records[:0]
	var deleted int64
	for _, rec := range m.records {
		if rec.TradeTime.Before(before) {
			deleted++
			delete(m.ids, rec.ID)
			continue
		}
		kept = append(kept, rec)
	}
	m.records = kept
	return deleted, nil
}

// Records returns a copy of everything stored.
func (m *Store) Records() []window.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Copy to avoid race
	out := make([]window.Record, len(m.records))
	copy(out, m.records)
	return out
}

func (m *Store) Close() error { return nil }
