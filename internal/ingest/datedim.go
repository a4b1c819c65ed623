package ingest

import (
	"slices"
	"strings"
	"time"

	"github.com/smukkama/weather-warehouse/internal/warehouse"
)

// DateDimFor builds the date dimension row for the calendar date of t.
// Only the wall-clock date of t is used, so the host zone never matters.
func DateDimFor(t time.Time) warehouse.DateDim {
	date := midnightUTC(t)
	return warehouse.DateDim{
		DateID:      warehouse.DateIDFor(date),
		Date:        date,
		Year:        date.Year(),
		Month:       int(date.Month()),
		Day:         date.Day(),
		WeekdayName: date.Weekday().String(),
	}
}

// DeriveDates returns one date dimension row per distinct calendar date in
// rows, ordered by date_id.
func DeriveDates(rows []Row) []warehouse.DateDim {
	seen := make(map[string]warehouse.DateDim)
	for _, r := range rows {
		d := DateDimFor(r.Timestamp)
		seen[d.DateID] = d
	}

	dates := make([]warehouse.DateDim, 0, len(seen))
	for _, d := range seen {
		dates = append(dates, d)
	}
	slices.SortFunc(dates, func(a, b warehouse.DateDim) int {
		return strings.Compare(a.DateID, b.DateID)
	})
	return dates
}
