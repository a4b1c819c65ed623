package reporting

import (
	"context"
	"slices"
	"strings"
	"time"
)

// DailySummary is one row of vw_weather_daily_summary
type DailySummary struct {
	DateID      string    `json:"date_id"`
	Date        time.Time `json:"date"`
	City        string    `json:"city"`
	AvgTemp     *float64  `json:"avg_temp"`
	MinTemp     *float64  `json:"min_temp"`
	MaxTemp     *float64  `json:"max_temp"`
	TotalPrecip *float64  `json:"total_precip"`
}

type dailyKey struct {
	dateID string
	city   string
}

type dailyGroup struct {
	date   time.Time
	temp   measure
	precip measure
}

// DailySummary returns temperature and precipitation per city and day,
// ordered by date_id and city
func (s *Service) DailySummary(ctx context.Context) ([]DailySummary, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	groups := make(map[dailyKey]*dailyGroup)
	for _, f := range snap.facts {
		d, ok := snap.dates[f.DateID]
		if !ok {
			continue
		}
		l, ok := snap.locations[f.LocationID]
		if !ok {
			continue
		}

		key := dailyKey{dateID: f.DateID, city: l.City}
		g, ok := groups[key]
		if !ok {
			g = &dailyGroup{date: d.Date}
			groups[key] = g
		}
		g.temp.add(f.TemperatureC)
		g.precip.add(f.PrecipitationMM)
	}

	out := make([]DailySummary, 0, len(groups))
	for key, g := range groups {
		out = append(out, DailySummary{
			DateID:      key.dateID,
			Date:        g.date,
			City:        key.city,
			AvgTemp:     g.temp.avg(),
			MinTemp:     g.temp.lowest(),
			MaxTemp:     g.temp.highest(),
			TotalPrecip: g.precip.total(),
		})
	}
	slices.SortFunc(out, func(a, b DailySummary) int {
		if c := strings.Compare(a.DateID, b.DateID); c != 0 {
			return c
		}
		return strings.Compare(a.City, b.City)
	})
	return out, nil
}
