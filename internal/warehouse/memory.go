package warehouse

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// MemoryStore is a concurrency-safe in-memory Store.
//
// Tables are immutable snapshots: a Tx merges into fresh slices and Commit
// swaps them in under the write lock, so readers see a run either entirely
// or not at all. One Tx may be open at a time.
type MemoryStore struct {
	mu        sync.RWMutex
	locations []Location
	dates     []DateDim
	facts     []FactWeather
	closed    bool

	writer chan struct{} // single-writer token
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		writer: make(chan struct{}, 1),
	}
}

// ReadLocations returns a copy of dim_location
func (s *MemoryStore) ReadLocations(ctx context.Context) ([]Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("%w: store is closed", ErrPersistenceUnavailable)
	}
	return slices.Clone(s.locations), nil
}

// ReadDates returns a copy of dim_date
func (s *MemoryStore) ReadDates(ctx context.Context) ([]DateDim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("%w: store is closed", ErrPersistenceUnavailable)
	}
	return slices.Clone(s.dates), nil
}

// ReadFacts returns a copy of fact_weather
func (s *MemoryStore) ReadFacts(ctx context.Context) ([]FactWeather, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("%w: store is closed", ErrPersistenceUnavailable)
	}
	return slices.Clone(s.facts), nil
}

// SeedLocations upserts locations by location_id
func (s *MemoryStore) SeedLocations(ctx context.Context, locations []Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: store is closed", ErrPersistenceUnavailable)
	}

	res, err := MergeLocations(s.locations, locations)
	if err != nil {
		return fmt.Errorf("failed to seed %s: %w", TableLocation, err)
	}
	s.locations = res.Rows
	return nil
}

// Begin waits for the writer slot and opens a Tx over the current snapshot
func (s *MemoryStore) Begin(ctx context.Context) (Tx, error) {
	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		<-s.writer
		return nil, fmt.Errorf("%w: store is closed", ErrPersistenceUnavailable)
	}

	return &memoryTx{
		store:     s,
		locations: s.locations,
		dates:     s.dates,
		facts:     s.facts,
	}, nil
}

// Close makes the store unavailable. Open transactions fail on Commit.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// memoryTx holds the staged tables of one run
type memoryTx struct {
	store     *MemoryStore
	locations []Location
	dates     []DateDim
	facts     []FactWeather
	done      bool
}

func (tx *memoryTx) MergeDates(ctx context.Context, rows []DateDim) (MergeStats, error) {
	if err := tx.check(); err != nil {
		return MergeStats{}, err
	}

	res, err := MergeDates(tx.dates, rows)
	if err != nil {
		return MergeStats{}, fmt.Errorf("failed to merge %s: %w", TableDate, err)
	}
	tx.dates = res.Rows
	return Stats(TableDate, len(rows), res), nil
}

func (tx *memoryTx) MergeFacts(ctx context.Context, rows []FactWeather) (MergeStats, error) {
	if err := tx.check(); err != nil {
		return MergeStats{}, err
	}

	res, err := MergeFacts(tx.facts, rows)
	if err != nil {
		return MergeStats{}, fmt.Errorf("failed to merge %s: %w", TableFact, err)
	}
	if err := tx.checkReferences(rows); err != nil {
		return MergeStats{}, fmt.Errorf("failed to merge %s: %w", TableFact, err)
	}
	tx.facts = res.Rows
	return Stats(TableFact, len(rows), res), nil
}

func (tx *memoryTx) checkReferences(rows []FactWeather) error {
	dates := make(map[string]struct{}, len(tx.dates))
	for _, d := range tx.dates {
		dates[d.DateID] = struct{}{}
	}
	locations := make(map[int]struct{}, len(tx.locations))
	for _, l := range tx.locations {
		locations[l.ID] = struct{}{}
	}

	for _, f := range rows {
		if _, ok := dates[f.DateID]; !ok {
			return fmt.Errorf("%w: unknown date_id %s", ErrInvalidKey, f.DateID)
		}
		if _, ok := locations[f.LocationID]; !ok {
			return fmt.Errorf("%w: unknown location_id %d", ErrInvalidKey, f.LocationID)
		}
	}
	return nil
}

func (tx *memoryTx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	defer func() { <-tx.store.writer }()

	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: store closed before commit", ErrPersistenceUnavailable)
	}
	s.dates = tx.dates
	s.facts = tx.facts
	return nil
}

func (tx *memoryTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	<-tx.store.writer
	return nil
}

func (tx *memoryTx) check() error {
	if tx.done {
		return ErrTxDone
	}
	if tx.store.isClosed() {
		return fmt.Errorf("%w: store is closed", ErrPersistenceUnavailable)
	}
	return nil
}
