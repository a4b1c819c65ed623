package ingest

import (
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/smukkama/weather-warehouse/internal/warehouse"
)

// Timestamp layouts accepted from a provider. Every timestamp of one series
// must parse with the layout that matched the first one.
var timestampLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// Reading is one fetched hourly observation. Nil measures were omitted by the source.
type Reading struct {
	Time          string
	Temperature   *float64
	Humidity      *float64
	Precipitation *float64
	Windspeed     *float64
}

// Series is the raw hourly data fetched for one location
type Series struct {
	LocationID int
	Readings   []Reading
}

// Row is a normalized observation
type Row struct {
	LocationID    int
	Timestamp     time.Time // wall clock of the location
	Temperature   *float64
	Humidity      *float64
	Precipitation *float64
	Windspeed     *float64
	LoadDate      time.Time
}

// DateID returns the date_id of the row's calendar date
func (r Row) DateID() string {
	return warehouse.DateIDFor(r.Timestamp)
}

// Hour returns the hour of day of the row
func (r Row) Hour() int {
	return r.Timestamp.Hour()
}

// Normalize lazily flattens a series into rows stamped with the location and
// load date. Iteration stops at the first malformed reading. Duplicate
// timestamps are passed through.
func Normalize(s Series, loadDate time.Time) iter.Seq2[Row, error] {
	load := midnightUTC(loadDate)

	return func(yield func(Row, error) bool) {
		layout := ""
		offset := 0
		for i, r := range s.Readings {
			if r.Time == "" {
				yield(Row{}, fmt.Errorf("%w: location %d reading %d has no timestamp",
					warehouse.ErrMalformedSourceData, s.LocationID, i))
				return
			}

			var (
				ts  time.Time
				err error
			)
			first := layout == ""
			if first {
				ts, layout, err = detectLayout(r.Time)
			} else {
				ts, err = time.Parse(layout, r.Time)
			}
			if err != nil {
				yield(Row{}, fmt.Errorf("%w: location %d reading %d: timestamp %q: %v",
					warehouse.ErrMalformedSourceData, s.LocationID, i, r.Time, err))
				return
			}

			// one instant must map to one wall-clock key
			_, off := ts.Zone()
			if first {
				offset = off
			} else if off != offset {
				yield(Row{}, fmt.Errorf("%w: location %d reading %d: timestamp %q offset differs from first reading",
					warehouse.ErrMalformedSourceData, s.LocationID, i, r.Time))
				return
			}

			row := Row{
				LocationID:    s.LocationID,
				Timestamp:     ts,
				Temperature:   r.Temperature,
				Humidity:      r.Humidity,
				Precipitation: r.Precipitation,
				Windspeed:     r.Windspeed,
				LoadDate:      load,
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// Collect drains a normalized sequence, returning the first error
func Collect(seq iter.Seq2[Row, error]) ([]Row, error) {
	var rows []Row
	for row, err := range seq {
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func detectLayout(value string) (time.Time, string, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, layout, nil
		}
	}
	return time.Time{}, "", errors.New("no known layout")
}

func midnightUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
