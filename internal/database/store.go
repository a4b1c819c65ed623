package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/smukkama/weather-warehouse/internal/warehouse"
)

// querier is implemented by *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Store is a warehouse.Store on a SQL database
type Store struct {
	db     *DB
	logger *zap.Logger
}

// NewStore creates a new SQL warehouse store
func NewStore(db *DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", warehouse.ErrPersistenceUnavailable, op, err)
}

// ReadLocations returns dim_location ordered by location_id
func (s *Store) ReadLocations(ctx context.Context) ([]warehouse.Location, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT location_id, city, latitude, longitude, timezone
		FROM dim_location
		ORDER BY location_id
	`)
	if err != nil {
		return nil, unavailable("failed to read locations", err)
	}
	defer rows.Close()

	var locations []warehouse.Location
	for rows.Next() {
		var l warehouse.Location
		if err := rows.Scan(&l.ID, &l.City, &l.Latitude, &l.Longitude, &l.Timezone); err != nil {
			return nil, unavailable("failed to scan location", err)
		}
		locations = append(locations, l)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("failed to read locations", err)
	}
	return locations, nil
}

// ReadDates returns dim_date ordered by date_id
func (s *Store) ReadDates(ctx context.Context) ([]warehouse.DateDim, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date_id, date, year, month, day, weekday_name
		FROM dim_date
		ORDER BY date_id
	`)
	if err != nil {
		return nil, unavailable("failed to read dates", err)
	}
	defer rows.Close()

	var dates []warehouse.DateDim
	for rows.Next() {
		var (
			d    warehouse.DateDim
			date dateValue
		)
		if err := rows.Scan(&d.DateID, &date, &d.Year, &d.Month, &d.Day, &d.WeekdayName); err != nil {
			return nil, unavailable("failed to scan date", err)
		}
		d.Date = date.Time
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("failed to read dates", err)
	}
	return dates, nil
}

// ReadFacts returns fact_weather ordered by key
func (s *Store) ReadFacts(ctx context.Context) ([]warehouse.FactWeather, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT location_id, date_id, hour, temperature_c, humidity,
		       precipitation_mm, windspeed_ms, load_date
		FROM fact_weather
		ORDER BY location_id, date_id, hour
	`)
	if err != nil {
		return nil, unavailable("failed to read facts", err)
	}
	defer rows.Close()

	var facts []warehouse.FactWeather
	for rows.Next() {
		var (
			f                            warehouse.FactWeather
			temp, humidity, precip, wind sql.NullFloat64
			load                         dateValue
		)
		if err := rows.Scan(&f.LocationID, &f.DateID, &f.Hour, &temp, &humidity, &precip, &wind, &load); err != nil {
			return nil, unavailable("failed to scan fact", err)
		}
		f.TemperatureC = fromNull(temp)
		f.Humidity = fromNull(humidity)
		f.PrecipitationMM = fromNull(precip)
		f.WindspeedMS = fromNull(wind)
		f.LoadDate = load.Time
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("failed to read facts", err)
	}
	return facts, nil
}

// SeedLocations upserts locations in one transaction
func (s *Store) SeedLocations(ctx context.Context, locations []warehouse.Location) error {
	if _, err := warehouse.ValidateBatch(locations, warehouse.LocationKeyOf); err != nil {
		return fmt.Errorf("failed to seed %s: %w", warehouse.TableLocation, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("failed to begin transaction", err)
	}
	defer tx.Rollback()

	args := make([][]any, len(locations))
	for i, l := range locations {
		args[i] = locationArgs(l)
	}
	if err := upsert(ctx, tx, s.db.dialect, locationTable, args); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return unavailable("failed to commit seed", err)
	}
	s.logger.Info("Seeded locations", zap.Int("count", len(locations)))
	return nil
}

// Begin opens a database transaction for one run
func (s *Store) Begin(ctx context.Context) (warehouse.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("failed to begin transaction", err)
	}
	return &sqlTx{tx: tx, dialect: s.db.dialect, logger: s.logger}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// sqlTx applies merges inside one database transaction
type sqlTx struct {
	tx      *sql.Tx
	dialect Dialect
	logger  *zap.Logger
	done    bool
}

func (t *sqlTx) MergeDates(ctx context.Context, rows []warehouse.DateDim) (warehouse.MergeStats, error) {
	if t.done {
		return warehouse.MergeStats{}, warehouse.ErrTxDone
	}
	if _, err := warehouse.ValidateBatch(rows, warehouse.DateKeyOf); err != nil {
		return warehouse.MergeStats{}, fmt.Errorf("failed to merge %s: %w", warehouse.TableDate, err)
	}

	ids := make([]any, len(rows))
	for i, d := range rows {
		ids[i] = d.DateID
	}
	existing, err := t.knownDates(ctx, ids)
	if err != nil {
		return warehouse.MergeStats{}, err
	}

	args := make([][]any, len(rows))
	updated := 0
	for i, d := range rows {
		args[i] = dateArgs(d)
		if existing[d.DateID] {
			updated++
		}
	}
	if err := upsert(ctx, t.tx, t.dialect, dateTable, args); err != nil {
		return warehouse.MergeStats{}, err
	}

	stats := warehouse.MergeStats{
		Table:      warehouse.TableDate,
		Candidates: len(rows),
		Inserted:   len(rows) - updated,
		Updated:    updated,
	}
	t.logger.Debug("Merged dates", zap.Int("inserted", stats.Inserted), zap.Int("updated", stats.Updated))
	return stats, nil
}

func (t *sqlTx) MergeFacts(ctx context.Context, rows []warehouse.FactWeather) (warehouse.MergeStats, error) {
	if t.done {
		return warehouse.MergeStats{}, warehouse.ErrTxDone
	}
	index, err := warehouse.ValidateBatch(rows, warehouse.FactKeyOf)
	if err != nil {
		return warehouse.MergeStats{}, fmt.Errorf("failed to merge %s: %w", warehouse.TableFact, err)
	}

	var dateIDs, locationIDs []any
	seenDate := map[string]bool{}
	seenLocation := map[int]bool{}
	for _, f := range rows {
		if !seenDate[f.DateID] {
			seenDate[f.DateID] = true
			dateIDs = append(dateIDs, f.DateID)
		}
		if !seenLocation[f.LocationID] {
			seenLocation[f.LocationID] = true
			locationIDs = append(locationIDs, f.LocationID)
		}
	}

	if err := t.checkReferences(ctx, rows, dateIDs, locationIDs); err != nil {
		return warehouse.MergeStats{}, err
	}

	updated := 0
	err = selectIn(ctx, t.tx, t.dialect,
		"SELECT location_id, date_id, hour FROM fact_weather WHERE date_id IN (%s)", dateIDs,
		func(r *sql.Rows) error {
			var k warehouse.FactKey
			if err := r.Scan(&k.LocationID, &k.DateID, &k.Hour); err != nil {
				return err
			}
			if _, ok := index[k]; ok {
				updated++
			}
			return nil
		})
	if err != nil {
		return warehouse.MergeStats{}, unavailable("failed to read existing facts", err)
	}

	args := make([][]any, len(rows))
	for i, f := range rows {
		args[i] = factArgs(f)
	}
	if err := upsert(ctx, t.tx, t.dialect, factTable, args); err != nil {
		return warehouse.MergeStats{}, err
	}

	stats := warehouse.MergeStats{
		Table:      warehouse.TableFact,
		Candidates: len(rows),
		Inserted:   len(rows) - updated,
		Updated:    updated,
	}
	t.logger.Debug("Merged facts", zap.Int("inserted", stats.Inserted), zap.Int("updated", stats.Updated))
	return stats, nil
}

func (t *sqlTx) knownDates(ctx context.Context, ids []any) (map[string]bool, error) {
	known := make(map[string]bool, len(ids))
	err := selectIn(ctx, t.tx, t.dialect, "SELECT date_id FROM dim_date WHERE date_id IN (%s)", ids,
		func(r *sql.Rows) error {
			var id string
			if err := r.Scan(&id); err != nil {
				return err
			}
			known[strings.TrimSpace(id)] = true
			return nil
		})
	if err != nil {
		return nil, unavailable("failed to read existing dates", err)
	}
	return known, nil
}

// checkReferences fails with ErrInvalidKey when a fact points at a date or
// location that is neither persisted nor staged in this transaction
func (t *sqlTx) checkReferences(ctx context.Context, rows []warehouse.FactWeather, dateIDs, locationIDs []any) error {
	dates, err := t.knownDates(ctx, dateIDs)
	if err != nil {
		return err
	}

	locations := make(map[int]bool, len(locationIDs))
	err = selectIn(ctx, t.tx, t.dialect, "SELECT location_id FROM dim_location WHERE location_id IN (%s)", locationIDs,
		func(r *sql.Rows) error {
			var id int
			if err := r.Scan(&id); err != nil {
				return err
			}
			locations[id] = true
			return nil
		})
	if err != nil {
		return unavailable("failed to read existing locations", err)
	}

	for _, f := range rows {
		if !dates[f.DateID] {
			return fmt.Errorf("failed to merge %s: %w: unknown date_id %s", warehouse.TableFact, warehouse.ErrInvalidKey, f.DateID)
		}
		if !locations[f.LocationID] {
			return fmt.Errorf("failed to merge %s: %w: unknown location_id %d", warehouse.TableFact, warehouse.ErrInvalidKey, f.LocationID)
		}
	}
	return nil
}

func (t *sqlTx) Commit() error {
	if t.done {
		return warehouse.ErrTxDone
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return unavailable("failed to commit", err)
	}
	return nil
}

func (t *sqlTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return unavailable("failed to roll back", err)
	}
	return nil
}

// upsert writes rows in chunks of at most maxRowsPerStatement
func upsert(ctx context.Context, q querier, d Dialect, t table, rows [][]any) error {
	for _, c := range chunks(len(rows), maxRowsPerStatement) {
		batch := rows[c[0]:c[1]]
		args := make([]any, 0, len(batch)*len(t.columns))
		for _, r := range batch {
			args = append(args, r...)
		}
		if _, err := q.ExecContext(ctx, upsertStatement(d, t, len(batch)), args...); err != nil {
			return unavailable("failed to upsert "+t.name, err)
		}
	}
	return nil
}

// selectIn runs query once per chunk of values, substituting the IN list
func selectIn(ctx context.Context, q querier, d Dialect, query string, values []any, scan func(*sql.Rows) error) error {
	for _, c := range chunks(len(values), maxRowsPerStatement) {
		batch := values[c[0]:c[1]]
		rows, err := q.QueryContext(ctx, fmt.Sprintf(query, d.placeholders(0, len(batch))), batch...)
		if err != nil {
			return err
		}
		for rows.Next() {
			if err := scan(rows); err != nil {
				rows.Close()
				return err
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
