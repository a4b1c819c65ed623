package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/weather-warehouse/internal/warehouse"
)

func TestRecordRun(t *testing.T) {
	r := NewRecorder()
	finished := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

	r.RecordRun(StatusSucceeded, 2*time.Second, finished)
	r.RecordRun(StatusFailed, time.Second, finished.Add(time.Hour))
	r.RecordRun(StatusSkipped, 0, finished.Add(2*time.Hour))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runStatusCounter.WithLabelValues(StatusSucceeded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runStatusCounter.WithLabelValues(StatusFailed)))
	assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(r.lastSuccess))
	assert.Equal(t, 3, testutil.CollectAndCount(r.runDurationSeconds))
}

func TestRecordMerge(t *testing.T) {
	r := NewRecorder()

	r.RecordMerge(warehouse.MergeStats{Table: warehouse.TableFact, Candidates: 48, Inserted: 24, Updated: 24})
	r.RecordMerge(warehouse.MergeStats{Table: warehouse.TableFact, Candidates: 24, Updated: 24})
	r.RecordMerge(warehouse.MergeStats{Table: warehouse.TableDate, Candidates: 1, Inserted: 1})

	assert.Equal(t, 24.0, testutil.ToFloat64(r.rowsMergedCounter.WithLabelValues(warehouse.TableFact, "inserted")))
	assert.Equal(t, 48.0, testutil.ToFloat64(r.rowsMergedCounter.WithLabelValues(warehouse.TableFact, "updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rowsMergedCounter.WithLabelValues(warehouse.TableDate, "inserted")))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RecordRun(StatusSucceeded, time.Second, time.Now())
		r.RecordMerge(warehouse.MergeStats{Table: warehouse.TableFact, Inserted: 1})
		r.RecordFetchFailure("Lviv")
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := NewRecorder()
	r.RecordFetchFailure("Lviv")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `warehouse_fetch_failures_total{city="Lviv"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
