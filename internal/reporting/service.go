package reporting

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/smukkama/weather-warehouse/internal/warehouse"
)

// Service computes the reporting views over a snapshot of the warehouse
type Service struct {
	reader warehouse.Reader
	ttl    time.Duration
	now    func() time.Time
	loc    *time.Location

	mu       sync.Mutex
	cached   *snapshot
	cachedAt time.Time
}

// snapshot is a consistent read of the three tables
type snapshot struct {
	facts     []warehouse.FactWeather
	dates     map[string]warehouse.DateDim
	locations map[int]warehouse.Location
}

// NewService creates a new reporting service. A positive ttl keeps the
// snapshot until it expires or Invalidate is called.
func NewService(reader warehouse.Reader, ttl time.Duration) *Service {
	return &Service{reader: reader, ttl: ttl, now: time.Now, loc: time.UTC}
}

// SetLocation sets the zone whose calendar decides "today" for the rolling
// windows. It should match the warehouse database's session time zone.
func (s *Service) SetLocation(loc *time.Location) {
	if loc != nil {
		s.loc = loc
	}
}

// Invalidate drops the cached snapshot
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
}

func (s *Service) load(ctx context.Context) (*snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && s.now().Sub(s.cachedAt) < s.ttl {
		return s.cached, nil
	}

	// Facts first: dimensions only grow, so every fact read finds its rows.
	facts, err := s.reader.ReadFacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load facts: %w", err)
	}
	dates, err := s.reader.ReadDates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load dates: %w", err)
	}
	locations, err := s.reader.ReadLocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load locations: %w", err)
	}

	snap := &snapshot{
		facts:     facts,
		dates:     make(map[string]warehouse.DateDim, len(dates)),
		locations: make(map[int]warehouse.Location, len(locations)),
	}
	for _, d := range dates {
		snap.dates[d.DateID] = d
	}
	for _, l := range locations {
		snap.locations[l.ID] = l
	}

	if s.ttl > 0 {
		s.cached = snap
		s.cachedAt = s.now()
	}
	return snap, nil
}

// today returns the current calendar date in the service's location, as a
// UTC midnight comparable with DateDim dates
func (s *Service) today() time.Time {
	y, m, d := s.now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// measure accumulates one column of a group, ignoring nulls
type measure struct {
	sum      float64
	n        int
	min, max float64
}

func (m *measure) add(v *float64) {
	if v == nil {
		return
	}
	if m.n == 0 || *v < m.min {
		m.min = *v
	}
	if m.n == 0 || *v > m.max {
		m.max = *v
	}
	m.sum += *v
	m.n++
}

func (m *measure) avg() *float64 {
	if m.n == 0 {
		return nil
	}
	return round2(m.sum / float64(m.n))
}

func (m *measure) total() *float64 {
	if m.n == 0 {
		return nil
	}
	return round2(m.sum)
}

func (m *measure) lowest() *float64 {
	if m.n == 0 {
		return nil
	}
	return round2(m.min)
}

func (m *measure) highest() *float64 {
	if m.n == 0 {
		return nil
	}
	return round2(m.max)
}

func round2(v float64) *float64 {
	r := math.Round(v*100) / 100
	return &r
}
