package protocol

import (
	"encoding/json"
	"time"

	"github.com/smukkama/weather-warehouse/internal/warehouse"
)

// RunEvent is published on the run-events topic after every pipeline run
type RunEvent struct {
	RunID       string                 `json:"run_id"`
	Status      string                 `json:"status"` // SUCCEEDED, FAILED
	WindowStart string                 `json:"window_start"`
	WindowEnd   string                 `json:"window_end"`
	StartedAt   time.Time              `json:"started_at"`
	FinishedAt  time.Time              `json:"finished_at"`
	Locations   int                    `json:"locations"`
	Merges      []warehouse.MergeStats `json:"merges,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

const (
	RunStatusSucceeded = "SUCCEEDED"
	RunStatusFailed    = "FAILED"
)

// Changed reports whether the run committed rows readers can see
func (e *RunEvent) Changed() bool {
	if e.Status != RunStatusSucceeded {
		return false
	}
	for _, m := range e.Merges {
		if m.Inserted+m.Updated > 0 {
			return true
		}
	}
	return false
}

// EncodeRunEvent encodes a RunEvent to JSON
func EncodeRunEvent(event *RunEvent) ([]byte, error) {
	return json.Marshal(event)
}

// DecodeRunEvent decodes JSON to RunEvent
func DecodeRunEvent(data []byte) (*RunEvent, error) {
	var event RunEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
