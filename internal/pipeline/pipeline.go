package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/smukkama/weather-warehouse/internal/ingest"
	"github.com/smukkama/weather-warehouse/internal/lock"
	"github.com/smukkama/weather-warehouse/internal/metrics"
	"github.com/smukkama/weather-warehouse/internal/protocol"
	"github.com/smukkama/weather-warehouse/internal/warehouse"
)

const (
	defaultFetchConcurrency = 4
	windowLayout            = "2006-01-02"
)

// Fetcher returns the raw hourly series of one location
type Fetcher interface {
	Fetch(ctx context.Context, loc warehouse.Location, start, end time.Time) (ingest.Series, error)
}

// Publisher delivers run events
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// LocationSource lists the monitored locations
type LocationSource interface {
	List(ctx context.Context) ([]warehouse.Location, error)
}

// Window is the inclusive range of calendar days fetched by one run
type Window struct {
	Start time.Time
	End   time.Time
}

// TodayWindow returns [today-backfillDays, today] in now's location
func TodayWindow(now time.Time, backfillDays int) Window {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	if backfillDays < 0 {
		backfillDays = 0
	}
	return Window{Start: today.AddDate(0, 0, -backfillDays), End: today}
}

// Validate checks that the window is not inverted
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return errors.New("window start and end are required")
	}
	if w.End.Before(w.Start) {
		return fmt.Errorf("window end %s is before start %s",
			w.End.Format(windowLayout), w.Start.Format(windowLayout))
	}
	return nil
}

func (w Window) String() string {
	return w.Start.Format(windowLayout) + ".." + w.End.Format(windowLayout)
}

// Config tunes a pipeline
type Config struct {
	FetchConcurrency int
}

// Report summarizes one committed run
type Report struct {
	RunID      string
	Window     Window
	StartedAt  time.Time
	FinishedAt time.Time
	Locations  int
	Rows       int
	Dates      warehouse.MergeStats
	Facts      warehouse.MergeStats
}

// Pipeline runs fetch, normalize, derive and merge as one unit of work
type Pipeline struct {
	store     warehouse.Store
	locations LocationSource
	fetcher   Fetcher
	locker    lock.Locker
	publisher Publisher
	metrics   *metrics.Recorder
	logger    *zap.Logger
	cfg       Config
	now       func() time.Time
}

// New creates a pipeline guarded by an in-process lock, without metrics or
// run events. Use the setters to change that.
func New(store warehouse.Store, locations LocationSource, fetcher Fetcher, logger *zap.Logger, cfg Config) *Pipeline {
	if cfg.FetchConcurrency < 1 {
		cfg.FetchConcurrency = defaultFetchConcurrency
	}
	return &Pipeline{
		store:     store,
		locations: locations,
		fetcher:   fetcher,
		locker:    lock.NewMutexLocker(),
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetLocker replaces the run lock
func (p *Pipeline) SetLocker(l lock.Locker) {
	p.locker = l
}

// SetPublisher enables run events
func (p *Pipeline) SetPublisher(pub Publisher) {
	p.publisher = pub
}

// SetMetrics enables metrics
func (p *Pipeline) SetMetrics(m *metrics.Recorder) {
	p.metrics = m
}

// Run executes one run over w. Either every fetched row of every location is
// committed or the store is left unchanged.
func (p *Pipeline) Run(ctx context.Context, w Window) (*Report, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	report := &Report{RunID: uuid.NewString(), Window: w, StartedAt: p.now()}
	logger := p.logger.With(zap.String("run_id", report.RunID), zap.Stringer("window", w))

	unlock, err := p.locker.TryLock(ctx)
	if err != nil {
		if errors.Is(err, warehouse.ErrRunInProgress) {
			logger.Warn("Skipping run, another run holds the lock")
			p.metrics.RecordRun(metrics.StatusSkipped, 0, report.StartedAt)
		}
		return nil, err
	}
	defer func() {
		// the lock outlives a cancelled run context
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Failed to release run lock", zap.Error(err))
		}
	}()

	runErr := p.execute(ctx, logger, report)
	report.FinishedAt = p.now()
	duration := report.FinishedAt.Sub(report.StartedAt)

	event := &protocol.RunEvent{
		RunID:       report.RunID,
		WindowStart: w.Start.Format(windowLayout),
		WindowEnd:   w.End.Format(windowLayout),
		StartedAt:   report.StartedAt,
		FinishedAt:  report.FinishedAt,
		Locations:   report.Locations,
	}

	if runErr != nil {
		p.metrics.RecordRun(metrics.StatusFailed, duration, report.FinishedAt)
		logger.Error("Run failed", zap.Duration("duration", duration), zap.Error(runErr))

		event.Status = protocol.RunStatusFailed
		event.Error = runErr.Error()
		p.publish(ctx, logger, event)
		return nil, runErr
	}

	p.metrics.RecordRun(metrics.StatusSucceeded, duration, report.FinishedAt)
	p.metrics.RecordMerge(report.Dates)
	p.metrics.RecordMerge(report.Facts)

	logger.Info("Run committed",
		zap.Int("locations", report.Locations),
		zap.Int("rows", report.Rows),
		zap.Int("dates", report.Dates.Candidates),
		zap.Int("dates_inserted", report.Dates.Inserted),
		zap.Int("dates_updated", report.Dates.Updated),
		zap.Int("facts", report.Facts.Candidates),
		zap.Int("facts_inserted", report.Facts.Inserted),
		zap.Int("facts_updated", report.Facts.Updated),
		zap.Duration("duration", duration))

	event.Status = protocol.RunStatusSucceeded
	event.Merges = []warehouse.MergeStats{report.Dates, report.Facts}
	p.publish(ctx, logger, event)

	return report, nil
}

func (p *Pipeline) execute(ctx context.Context, logger *zap.Logger, report *Report) error {
	locations, err := p.locations.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list locations: %w", err)
	}
	report.Locations = len(locations)
	if len(locations) == 0 {
		logger.Warn("No locations registered")
	}

	rows, err := p.fetchAll(ctx, locations, report.Window, p.now())
	if err != nil {
		return err
	}
	report.Rows = len(rows)

	dates := ingest.DeriveDates(rows)
	facts := ingest.BuildFacts(rows)

	tx, err := p.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin merge: %w", err)
	}
	defer tx.Rollback()

	if report.Dates, err = tx.MergeDates(ctx, dates); err != nil {
		return fmt.Errorf("failed to merge dates: %w", err)
	}
	if report.Facts, err = tx.MergeFacts(ctx, facts); err != nil {
		return fmt.Errorf("failed to merge facts: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// fetchAll fetches and normalizes every location concurrently. The first
// failure cancels the remaining fetches. Rows keep registry order.
func (p *Pipeline) fetchAll(ctx context.Context, locations []warehouse.Location, w Window, loadDate time.Time) ([]ingest.Row, error) {
	results := make([][]ingest.Row, len(locations))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.FetchConcurrency)

	for i, loc := range locations {
		g.Go(func() error {
			series, err := p.fetcher.Fetch(gCtx, loc, w.Start, w.End)
			if err != nil {
				p.metrics.RecordFetchFailure(loc.City)
				return err
			}
			series.LocationID = loc.ID

			rows, err := ingest.Collect(ingest.Normalize(series, loadDate))
			if err != nil {
				return err
			}
			results[i] = rows

			p.logger.Debug("Normalized location",
				zap.Int("location_id", loc.ID),
				zap.String("city", loc.City),
				zap.Int("rows", len(rows)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var rows []ingest.Row
	for _, r := range results {
		rows = append(rows, r...)
	}
	return rows, nil
}

func (p *Pipeline) publish(ctx context.Context, logger *zap.Logger, event *protocol.RunEvent) {
	if p.publisher == nil {
		return
	}

	data, err := protocol.EncodeRunEvent(event)
	if err != nil {
		logger.Error("Failed to encode run event", zap.Error(err))
		return
	}
	if err := p.publisher.Publish(context.WithoutCancel(ctx), event.RunID, data); err != nil {
		logger.Warn("Failed to publish run event", zap.Error(err))
	}
}
