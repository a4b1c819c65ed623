package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/weather-warehouse/internal/warehouse"
)

func TestSeedAndList(t *testing.T) {
	ctx := context.Background()
	store := warehouse.NewMemoryStore()
	reg := New(store)

	locations := DefaultLocations()
	require.NoError(t, reg.Seed(ctx, []warehouse.Location{locations[2], locations[0]}))
	require.NoError(t, reg.Seed(ctx, locations))

	got, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, locations, got)
}

func TestSeedKeepsUnlistedLocations(t *testing.T) {
	ctx := context.Background()
	reg := New(warehouse.NewMemoryStore())

	require.NoError(t, reg.Seed(ctx, DefaultLocations()))
	require.NoError(t, reg.Seed(ctx, []warehouse.Location{
		{ID: 2, City: "Ternopil", Latitude: 49.55, Longitude: 25.6, Timezone: "Europe/Kyiv"},
	}))

	got, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Europe/Kyiv", got[1].Timezone)
	assert.Equal(t, "Zhytomyr", got[2].City)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	err := Validate([]warehouse.Location{
		{ID: 1, City: "Lviv", Latitude: 49.8, Longitude: 24.0, Timezone: "auto"},
		{ID: 1, City: "Lviv again", Latitude: 49.8, Longitude: 24.0, Timezone: "auto"},
		{ID: 0, City: "", Latitude: 95, Longitude: 24.0, Timezone: "Mars/Olympus"},
	})
	require.Error(t, err)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 5)
	assert.ErrorIs(t, err, warehouse.ErrDuplicateKey)
	assert.ErrorIs(t, err, warehouse.ErrInvalidKey)
}

func TestSeedRejectsInvalidListWithoutWriting(t *testing.T) {
	ctx := context.Background()
	store := warehouse.NewMemoryStore()

	err := New(store).Seed(ctx, []warehouse.Location{
		{ID: 1, City: "Lviv", Latitude: 49.8, Longitude: 24.0, Timezone: "auto"},
		{ID: 2, City: "Nowhere", Latitude: 0, Longitude: 200, Timezone: "auto"},
	})
	require.Error(t, err)

	got, err := store.ReadLocations(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadFile(t *testing.T) {
	locations, err := LoadFile(filepath.Join("..", "..", "config", "locations.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultLocations(), locations)
	assert.NoError(t, Validate(locations))
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("locations: []\n"), 0o600))
	_, err = LoadFile(empty)
	assert.ErrorContains(t, err, "no locations")

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("locations: [\n"), 0o600))
	_, err = LoadFile(broken)
	assert.ErrorContains(t, err, "failed to parse")
}
