package warehouse

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	require.NoError(t, s.SeedLocations(context.Background(), []Location{
		{ID: 1, City: "Lviv", Latitude: 49.838, Longitude: 24.023, Timezone: "auto"},
		{ID: 2, City: "Ternopil", Latitude: 49.55589, Longitude: 25.60556, Timezone: "auto"},
	}))
	return s
}

func applyRun(t *testing.T, s Store, dates []DateDim, facts []FactWeather) (MergeStats, MergeStats) {
	t.Helper()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	ds, err := tx.MergeDates(ctx, dates)
	require.NoError(t, err)
	fs, err := tx.MergeFacts(ctx, facts)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return ds, fs
}

func TestMemoryStoreEndToEndCorrection(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)

	ds, fs := applyRun(t, s,
		[]DateDim{day(2024, 3, 1)},
		[]FactWeather{fact(1, "20240301", 0, f64(2.5)), fact(1, "20240301", 1, f64(2.1))},
	)
	assert.Equal(t, MergeStats{Table: TableDate, Candidates: 1, Inserted: 1}, ds)
	assert.Equal(t, MergeStats{Table: TableFact, Candidates: 2, Inserted: 2}, fs)

	dates, err := s.ReadDates(ctx)
	require.NoError(t, err)
	require.Len(t, dates, 1)
	assert.Equal(t, "20240301", dates[0].DateID)
	assert.Equal(t, "Friday", dates[0].WeekdayName)

	_, fs = applyRun(t, s,
		[]DateDim{day(2024, 3, 1)},
		[]FactWeather{fact(1, "20240301", 0, f64(2.7)), fact(1, "20240301", 1, f64(2.1))},
	)
	assert.Equal(t, 2, fs.Updated)
	assert.Equal(t, 0, fs.Inserted)

	facts, err := s.ReadFacts(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	byHour := map[int]float64{}
	for _, f := range facts {
		byHour[f.Hour] = *f.TemperatureC
	}
	assert.Equal(t, 2.7, byHour[0])
	assert.Equal(t, 2.1, byHour[1])
}

func TestMemoryStoreRollbackDiscardsStagedMerges(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)
	applyRun(t, s, []DateDim{day(2024, 3, 1)}, []FactWeather{fact(1, "20240301", 0, f64(2.5))})

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.MergeDates(ctx, []DateDim{day(2024, 3, 2)})
	require.NoError(t, err)
	_, err = tx.MergeFacts(ctx, []FactWeather{fact(1, "20240301", 0, f64(9)), fact(1, "20240302", 0, f64(9))})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	dates, err := s.ReadDates(ctx)
	require.NoError(t, err)
	assert.Len(t, dates, 1)

	facts, err := s.ReadFacts(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, 2.5, *facts[0].TemperatureC)

	assert.ErrorIs(t, tx.Commit(), ErrTxDone)
	assert.NoError(t, tx.Rollback())
}

func TestMemoryStoreReadersNeverSeeStagedRows(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.MergeDates(ctx, []DateDim{day(2024, 3, 1)})
	require.NoError(t, err)
	_, err = tx.MergeFacts(ctx, []FactWeather{fact(1, "20240301", 0, f64(2.5))})
	require.NoError(t, err)

	facts, err := s.ReadFacts(ctx)
	require.NoError(t, err)
	assert.Empty(t, facts)

	require.NoError(t, tx.Commit())

	facts, err = s.ReadFacts(ctx)
	require.NoError(t, err)
	assert.Len(t, facts, 1)
}

func TestMemoryStoreConcurrentReadersSeeWholeBatches(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)

	const batch = 24
	build := func(temp float64) []FactWeather {
		rows := make([]FactWeather, batch)
		for h := range rows {
			rows[h] = fact(1, "20240301", h, f64(temp))
		}
		return rows
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			facts, err := s.ReadFacts(ctx)
			if !assert.NoError(t, err) {
				return
			}
			if len(facts) == 0 {
				continue
			}
			assert.Len(t, facts, batch)
			first := *facts[0].TemperatureC
			for _, f := range facts {
				assert.Equal(t, first, *f.TemperatureC, "observed a partially merged batch")
			}
		}
	}()

	for i := 0; i < 50; i++ {
		applyRun(t, s, []DateDim{day(2024, 3, 1)}, build(float64(i)))
	}
	close(stop)
	wg.Wait()
}

func TestMemoryStoreRejectsFactsWithoutDimensions(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.MergeFacts(ctx, []FactWeather{fact(1, "20240301", 0, nil)})
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.Contains(t, err.Error(), "unknown date_id")

	_, err = tx.MergeDates(ctx, []DateDim{day(2024, 3, 1)})
	require.NoError(t, err)

	_, err = tx.MergeFacts(ctx, []FactWeather{fact(7, "20240301", 0, nil)})
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.Contains(t, err.Error(), "unknown location_id")
}

func TestMemoryStoreInvalidBatchLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)
	applyRun(t, s, []DateDim{day(2024, 3, 1)}, []FactWeather{fact(1, "20240301", 0, f64(2.5))})

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.MergeFacts(ctx, []FactWeather{fact(1, "20240301", 0, f64(3)), fact(1, "20240301", 0, f64(4))})
	assert.ErrorIs(t, err, ErrDuplicateKey)
	require.NoError(t, tx.Rollback())

	facts, err := s.ReadFacts(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, 2.5, *facts[0].TemperatureC)
}

func TestMemoryStoreCloseFailsPendingCommit(t *testing.T) {
	ctx := context.Background()
	s := seededStore(t)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.MergeDates(ctx, []DateDim{day(2024, 3, 1)})
	require.NoError(t, err)

	require.NoError(t, s.Close())

	assert.ErrorIs(t, tx.Commit(), ErrPersistenceUnavailable)

	_, err = s.Begin(ctx)
	assert.ErrorIs(t, err, ErrPersistenceUnavailable)
	_, err = s.ReadDates(ctx)
	assert.ErrorIs(t, err, ErrPersistenceUnavailable)
}

func TestMemoryStoreSerializesWriters(t *testing.T) {
	s := seededStore(t)

	tx, err := s.Begin(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Begin(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, tx.Rollback())

	next, err := s.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, next.Rollback())
}
