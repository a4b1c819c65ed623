package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/weather-warehouse/internal/ingest"
	"github.com/smukkama/weather-warehouse/internal/warehouse"
)

// DefaultBaseURL is the Open-Meteo forecast endpoint
const DefaultBaseURL = "https://api.open-meteo.com/v1/forecast"

const (
	hourlyVariables = "temperature_2m,relativehumidity_2m,precipitation,windspeed_10m"
	dateLayout      = "2006-01-02"
)

// forecastResponse is the subset of the Open-Meteo answer we read.
// Missing values arrive as JSON null.
type forecastResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
	Hourly    struct {
		Time          []string   `json:"time"`
		Temperature   []*float64 `json:"temperature_2m"`
		Humidity      []*float64 `json:"relativehumidity_2m"`
		Precipitation []*float64 `json:"precipitation"`
		Windspeed     []*float64 `json:"windspeed_10m"`
	} `json:"hourly"`
}

// OpenMeteo fetches hourly observations from the Open-Meteo forecast API
type OpenMeteo struct {
	baseURL   string
	transport *transport
	logger    *zap.Logger
}

// NewOpenMeteo creates an Open-Meteo fetcher using a plain http.Client
func NewOpenMeteo(cfg Config, logger *zap.Logger) *OpenMeteo {
	return NewOpenMeteoWithClient(cfg, &http.Client{Timeout: cfg.Timeout}, logger)
}

// NewOpenMeteoWithClient creates an Open-Meteo fetcher on top of client
func NewOpenMeteoWithClient(cfg Config, client HTTPClient, logger *zap.Logger) *OpenMeteo {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &OpenMeteo{
		baseURL:   baseURL,
		transport: newTransport("openmeteo", cfg, client, logger),
		logger:    logger,
	}
}

// Fetch returns the hourly series of loc between start and end, inclusive
func (o *OpenMeteo) Fetch(ctx context.Context, loc warehouse.Location, start, end time.Time) (ingest.Series, error) {
	body, err := o.transport.get(ctx, o.requestURL(loc, start, end))
	if err != nil {
		return ingest.Series{}, fmt.Errorf("%w: location %d (%s): %w",
			warehouse.ErrSourceUnavailable, loc.ID, loc.City, err)
	}

	var payload forecastResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return ingest.Series{}, fmt.Errorf("%w: location %d (%s): decode response: %v",
			warehouse.ErrMalformedSourceData, loc.ID, loc.City, err)
	}

	series, err := toSeries(loc.ID, payload)
	if err != nil {
		return ingest.Series{}, fmt.Errorf("location %d (%s): %w", loc.ID, loc.City, err)
	}

	o.logger.Debug("Fetched hourly series",
		zap.Int("location_id", loc.ID),
		zap.String("city", loc.City),
		zap.String("timezone", payload.Timezone),
		zap.Int("readings", len(series.Readings)))
	return series, nil
}

func (o *OpenMeteo) requestURL(loc warehouse.Location, start, end time.Time) string {
	timezone := loc.Timezone
	if timezone == "" {
		timezone = "auto"
	}

	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	values.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	values.Set("hourly", hourlyVariables)
	values.Set("windspeed_unit", "ms")
	values.Set("timezone", timezone)
	values.Set("start_date", start.Format(dateLayout))
	values.Set("end_date", end.Format(dateLayout))

	return o.baseURL + "?" + values.Encode()
}

// toSeries zips the column arrays into readings. A measurement array shorter
// than the time array leaves the tail null; a longer one is malformed.
func toSeries(locationID int, payload forecastResponse) (ingest.Series, error) {
	h := payload.Hourly
	n := len(h.Time)

	columns := map[string][]*float64{
		"temperature_2m":      h.Temperature,
		"relativehumidity_2m": h.Humidity,
		"precipitation":       h.Precipitation,
		"windspeed_10m":       h.Windspeed,
	}
	for name, col := range columns {
		if len(col) > n {
			return ingest.Series{}, fmt.Errorf("%w: %s has %d values for %d timestamps",
				warehouse.ErrMalformedSourceData, name, len(col), n)
		}
	}

	readings := make([]ingest.Reading, n)
	for i, ts := range h.Time {
		readings[i] = ingest.Reading{
			Time:          ts,
			Temperature:   at(h.Temperature, i),
			Humidity:      at(h.Humidity, i),
			Precipitation: at(h.Precipitation, i),
			Windspeed:     at(h.Windspeed, i),
		}
	}
	return ingest.Series{LocationID: locationID, Readings: readings}, nil
}

func at(col []*float64, i int) *float64 {
	if i < len(col) {
		return col[i]
	}
	return nil
}
