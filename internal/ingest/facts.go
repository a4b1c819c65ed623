package ingest

import (
	"github.com/smukkama/weather-warehouse/internal/warehouse"
)

// BuildFacts converts normalized rows into fact candidates with one row per
// (location_id, date_id, hour). When a fetch repeats a key the last reading
// wins, keeping the position of the first.
func BuildFacts(rows []Row) []warehouse.FactWeather {
	facts := make([]warehouse.FactWeather, 0, len(rows))
	index := make(map[warehouse.FactKey]int, len(rows))

	for _, r := range rows {
		f := warehouse.FactWeather{
			LocationID:      r.LocationID,
			DateID:          r.DateID(),
			Hour:            r.Hour(),
			TemperatureC:    r.Temperature,
			Humidity:        r.Humidity,
			PrecipitationMM: r.Precipitation,
			WindspeedMS:     r.Windspeed,
			LoadDate:        r.LoadDate,
		}
		key := warehouse.FactKey{LocationID: f.LocationID, DateID: f.DateID, Hour: f.Hour}

		if i, ok := index[key]; ok {
			facts[i] = f
			continue
		}
		index[key] = len(facts)
		facts = append(facts, f)
	}
	return facts
}
