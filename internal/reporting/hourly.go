package reporting

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"
)

// HourlyProfile is one row of the hourly profile views. DateID is empty for
// the rolling-window profiles, which aggregate across days.
type HourlyProfile struct {
	City    string   `json:"city"`
	DateID  string   `json:"date_id,omitempty"`
	Hour    int      `json:"hour"`
	AvgTemp *float64 `json:"avg_temp"`
	AvgRain *float64 `json:"avg_rain"`
}

type hourlyKey struct {
	city   string
	dateID string
	hour   int
}

type hourlyGroup struct {
	temp measure
	rain measure
}

// HourlyProfile returns average temperature and rain per city, day and hour
func (s *Service) HourlyProfile(ctx context.Context) ([]HourlyProfile, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return profile(snap, true, func(string) bool { return true }), nil
}

// HourlyProfileLast7Days returns the per-hour profile of the last 7 days
func (s *Service) HourlyProfileLast7Days(ctx context.Context) ([]HourlyProfile, error) {
	return s.profileSince(ctx, s.today().AddDate(0, 0, -7))
}

// HourlyProfileLast30Days returns the per-hour profile of the last month
func (s *Service) HourlyProfileLast30Days(ctx context.Context) ([]HourlyProfile, error) {
	return s.profileSince(ctx, s.today().AddDate(0, -1, 0))
}

func (s *Service) profileSince(ctx context.Context, cutoff time.Time) ([]HourlyProfile, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return profile(snap, false, func(dateID string) bool {
		d, ok := snap.dates[dateID]
		return ok && !d.Date.Before(cutoff)
	}), nil
}

// profile groups facts by city and hour, and by day too when perDay is set
func profile(snap *snapshot, perDay bool, include func(dateID string) bool) []HourlyProfile {
	groups := make(map[hourlyKey]*hourlyGroup)
	for _, f := range snap.facts {
		l, ok := snap.locations[f.LocationID]
		if !ok || !include(f.DateID) {
			continue
		}

		key := hourlyKey{city: l.City, hour: f.Hour}
		if perDay {
			key.dateID = f.DateID
		}
		g, ok := groups[key]
		if !ok {
			g = &hourlyGroup{}
			groups[key] = g
		}
		g.temp.add(f.TemperatureC)
		g.rain.add(f.PrecipitationMM)
	}

	out := make([]HourlyProfile, 0, len(groups))
	for key, g := range groups {
		out = append(out, HourlyProfile{
			City:    key.city,
			DateID:  key.dateID,
			Hour:    key.hour,
			AvgTemp: g.temp.avg(),
			AvgRain: g.rain.avg(),
		})
	}
	slices.SortFunc(out, func(a, b HourlyProfile) int {
		if c := strings.Compare(a.City, b.City); c != 0 {
			return c
		}
		if c := strings.Compare(a.DateID, b.DateID); c != 0 {
			return c
		}
		return cmp.Compare(a.Hour, b.Hour)
	})
	return out
}
