package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/smukkama/weather-warehouse/internal/warehouse"
)

const sqlDateLayout = "2006-01-02"

// table describes how a warehouse table is upserted
type table struct {
	name    string
	keys    []string // conflict target
	columns []string // every column, keys first
}

var (
	locationTable = table{
		name:    warehouse.TableLocation,
		keys:    []string{"location_id"},
		columns: []string{"location_id", "city", "latitude", "longitude", "timezone"},
	}
	dateTable = table{
		name:    warehouse.TableDate,
		keys:    []string{"date_id"},
		columns: []string{"date_id", "date", "year", "month", "day", "weekday_name"},
	}
	factTable = table{
		name:    warehouse.TableFact,
		keys:    []string{"location_id", "date_id", "hour"},
		columns: []string{"location_id", "date_id", "hour", "temperature_c", "humidity", "precipitation_mm", "windspeed_ms", "load_date"},
	}
)

func locationArgs(l warehouse.Location) []any {
	return []any{l.ID, l.City, l.Latitude, l.Longitude, l.Timezone}
}

func dateArgs(d warehouse.DateDim) []any {
	return []any{d.DateID, d.Date.Format(sqlDateLayout), d.Year, d.Month, d.Day, d.WeekdayName}
}

func factArgs(f warehouse.FactWeather) []any {
	return []any{
		f.LocationID, f.DateID, f.Hour,
		nullable(f.TemperatureC), nullable(f.Humidity), nullable(f.PrecipitationMM), nullable(f.WindspeedMS),
		f.LoadDate.Format(sqlDateLayout),
	}
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// dateValue scans a DATE column into UTC midnight whatever the driver returns
type dateValue struct {
	time.Time
}

func (d *dateValue) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		y, m, day := v.Date()
		d.Time = time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into a date", src)
	}
}

func (d *dateValue) parse(s string) error {
	if len(s) > len(sqlDateLayout) {
		s = s[:len(sqlDateLayout)]
	}
	t, err := time.Parse(sqlDateLayout, strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("cannot parse date %q: %w", s, err)
	}
	d.Time = t
	return nil
}
