package registry

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/smukkama/weather-warehouse/internal/warehouse"
)

// Store is the part of the warehouse the registry needs
type Store interface {
	ReadLocations(ctx context.Context) ([]warehouse.Location, error)
	SeedLocations(ctx context.Context, locations []warehouse.Location) error
}

// Registry exposes the monitored locations held in dim_location
type Registry struct {
	store Store
}

// New creates a new Registry
func New(store Store) *Registry {
	return &Registry{store: store}
}

// List returns the monitored locations ordered by location_id
func (r *Registry) List(ctx context.Context) ([]warehouse.Location, error) {
	locations, err := r.store.ReadLocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	slices.SortFunc(locations, func(a, b warehouse.Location) int {
		return a.ID - b.ID
	})
	return locations, nil
}

// Seed validates and upserts locations. Existing locations not in the list
// are kept.
func (r *Registry) Seed(ctx context.Context, locations []warehouse.Location) error {
	if err := Validate(locations); err != nil {
		return err
	}
	if err := r.store.SeedLocations(ctx, locations); err != nil {
		return fmt.Errorf("failed to seed locations: %w", err)
	}
	return nil
}

// Validate reports every invalid entry of a seed list at once
func Validate(locations []warehouse.Location) error {
	var result error
	seen := make(map[int]bool, len(locations))

	for i, l := range locations {
		if _, err := warehouse.LocationKeyOf(l); err != nil {
			result = multierror.Append(result, fmt.Errorf("location %d: %w", i, err))
		} else if seen[l.ID] {
			result = multierror.Append(result, fmt.Errorf("location %d: %w: location_id %d", i, warehouse.ErrDuplicateKey, l.ID))
		}
		seen[l.ID] = true

		if l.City == "" {
			result = multierror.Append(result, fmt.Errorf("location %d: empty city", i))
		}
		if l.Latitude < -90 || l.Latitude > 90 {
			result = multierror.Append(result, fmt.Errorf("location %d: latitude %v out of range", i, l.Latitude))
		}
		if l.Longitude < -180 || l.Longitude > 180 {
			result = multierror.Append(result, fmt.Errorf("location %d: longitude %v out of range", i, l.Longitude))
		}
		if l.Timezone != "auto" {
			if _, err := time.LoadLocation(l.Timezone); err != nil || l.Timezone == "" {
				result = multierror.Append(result, fmt.Errorf("location %d: unknown timezone %q", i, l.Timezone))
			}
		}
	}
	return result
}

// DefaultLocations returns the built-in seed set
func DefaultLocations() []warehouse.Location {
	return []warehouse.Location{
		{ID: 1, City: "Lviv", Latitude: 49.83826, Longitude: 24.02324, Timezone: "auto"},
		{ID: 2, City: "Ternopil", Latitude: 49.55589, Longitude: 25.60556, Timezone: "auto"},
		{ID: 3, City: "Zhytomyr", Latitude: 50.26487, Longitude: 28.67669, Timezone: "auto"},
	}
}

type seedFile struct {
	Locations []warehouse.Location `yaml:"locations"`
}

// LoadFile reads a YAML seed file with a top-level locations list
func LoadFile(path string) ([]warehouse.Location, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	if len(f.Locations) == 0 {
		return nil, fmt.Errorf("seed file %s has no locations", path)
	}
	return f.Locations, nil
}
