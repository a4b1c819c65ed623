package warehouse

import (
	"context"
)

// Reader gives read-only access to the three warehouse tables
type Reader interface {
	ReadLocations(ctx context.Context) ([]Location, error)
	ReadDates(ctx context.Context) ([]DateDim, error)
	ReadFacts(ctx context.Context) ([]FactWeather, error)
}

// Store is the durable owner of dim_location, dim_date and fact_weather.
// All pipeline writes go through a Tx.
type Store interface {
	Reader

	// SeedLocations upserts registry rows. Administrative, not used by runs.
	SeedLocations(ctx context.Context, locations []Location) error

	// Begin opens the unit of work for one pipeline run
	Begin(ctx context.Context) (Tx, error)

	Close() error
}

// Tx stages merges for one run. Readers see none of them until Commit
// returns, and none at all after Rollback.
type Tx interface {
	MergeDates(ctx context.Context, rows []DateDim) (MergeStats, error)

	// MergeFacts requires the date and location of every row to exist,
	// either persisted or staged earlier in this Tx.
	MergeFacts(ctx context.Context, rows []FactWeather) (MergeStats, error)

	Commit() error

	// Rollback discards staged merges. It is a no-op after Commit.
	Rollback() error
}
