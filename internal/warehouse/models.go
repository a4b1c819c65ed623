package warehouse

import (
	"time"
)

// Location represents a monitored place (dim_location)
type Location struct {
	ID        int     `yaml:"location_id" json:"location_id"`
	City      string  `yaml:"city" json:"city"`
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
	Timezone  string  `yaml:"timezone" json:"timezone"` // IANA name or "auto"
}

// DateDim represents one calendar day (dim_date)
type DateDim struct {
	DateID      string    `json:"date_id"` // YYYYMMDD
	Date        time.Time `json:"date"`    // UTC midnight
	Year        int       `json:"year"`
	Month       int       `json:"month"`
	Day         int       `json:"day"`
	WeekdayName string    `json:"weekday_name"`
}

// FactWeather represents one hourly observation for a location (fact_weather)
type FactWeather struct {
	LocationID      int       `json:"location_id"`
	DateID          string    `json:"date_id"`
	Hour            int       `json:"hour"`
	TemperatureC    *float64  `json:"temperature_c"`
	Humidity        *float64  `json:"humidity"`
	PrecipitationMM *float64  `json:"precipitation_mm"`
	WindspeedMS     *float64  `json:"windspeed_ms"`
	LoadDate        time.Time `json:"load_date"`
}

// Table names, shared by the stores and the migrations
const (
	TableLocation = "dim_location"
	TableDate     = "dim_date"
	TableFact     = "fact_weather"
)

// MergeStats describes the outcome of one merge into one table
type MergeStats struct {
	Table      string `json:"table"`
	Candidates int    `json:"candidates"`
	Inserted   int    `json:"inserted"`
	Updated    int    `json:"updated"`
}
