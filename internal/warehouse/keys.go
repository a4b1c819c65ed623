package warehouse

import (
	"fmt"
	"time"
)

// DateIDLayout is the canonical encoding of a calendar date as date_id
const DateIDLayout = "20060102"

// DateKey is the natural key of dim_date
type DateKey string

// FactKey is the natural key of fact_weather
type FactKey struct {
	LocationID int
	DateID     string
	Hour       int
}

func (k FactKey) String() string {
	return fmt.Sprintf("(%d, %s, %d)", k.LocationID, k.DateID, k.Hour)
}

// DateIDFor encodes the wall-clock calendar date of t
func DateIDFor(t time.Time) string {
	return t.Format(DateIDLayout)
}

// ParseDateID decodes a date_id into its UTC midnight
func ParseDateID(id string) (time.Time, error) {
	if len(id) != len(DateIDLayout) {
		return time.Time{}, fmt.Errorf("%w: date_id %q is not YYYYMMDD", ErrInvalidKey, id)
	}
	t, err := time.Parse(DateIDLayout, id)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date_id %q: %v", ErrInvalidKey, id, err)
	}
	return t, nil
}

// DateKeyOf extracts and validates the natural key of a date row.
// The date_id must encode the row's date.
func DateKeyOf(d DateDim) (DateKey, error) {
	if d.DateID == "" {
		return "", fmt.Errorf("%w: empty date_id", ErrInvalidKey)
	}
	if _, err := ParseDateID(d.DateID); err != nil {
		return "", err
	}
	if d.Date.IsZero() {
		return "", fmt.Errorf("%w: date_id %s has no date", ErrInvalidKey, d.DateID)
	}
	if got := DateIDFor(d.Date); got != d.DateID {
		return "", fmt.Errorf("%w: date_id %s does not encode date %s", ErrInvalidKey, d.DateID, got)
	}
	return DateKey(d.DateID), nil
}

// FactKeyOf extracts and validates the natural key of a fact row
func FactKeyOf(f FactWeather) (FactKey, error) {
	key := FactKey{LocationID: f.LocationID, DateID: f.DateID, Hour: f.Hour}

	if f.LocationID <= 0 {
		return FactKey{}, fmt.Errorf("%w: location_id %d in %s", ErrInvalidKey, f.LocationID, key)
	}
	if _, err := ParseDateID(f.DateID); err != nil {
		return FactKey{}, err
	}
	if f.Hour < 0 || f.Hour > 23 {
		return FactKey{}, fmt.Errorf("%w: hour %d out of range in %s", ErrInvalidKey, f.Hour, key)
	}
	return key, nil
}

// LocationKeyOf extracts and validates the natural key of a location row
func LocationKeyOf(l Location) (int, error) {
	if l.ID <= 0 {
		return 0, fmt.Errorf("%w: location_id %d", ErrInvalidKey, l.ID)
	}
	return l.ID, nil
}
