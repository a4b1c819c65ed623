package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUpsertStatementSQLite(t *testing.T) {
	got := upsertStatement(DialectSQLite, locationTable, 2)
	want := "INSERT INTO dim_location (location_id, city, latitude, longitude, timezone) " +
		"VALUES (?, ?, ?, ?, ?), (?, ?, ?, ?, ?) " +
		"ON CONFLICT (location_id) DO UPDATE SET city = excluded.city, latitude = excluded.latitude, " +
		"longitude = excluded.longitude, timezone = excluded.timezone"
	assert.Equal(t, want, got)
}

func TestUpsertStatementUpdatesEveryNonKeyColumn(t *testing.T) {
	got := upsertStatement(DialectPostgres, factTable, 1)
	assert.Contains(t, got, "VALUES ($1, $2, $3, $4, $5, $6, $7, $8)")
	assert.Contains(t, got, "ON CONFLICT (location_id, date_id, hour)")
	for _, col := range factTable.columns[len(factTable.keys):] {
		assert.Contains(t, got, col+" = excluded."+col)
	}
	assert.NotContains(t, got, "hour = excluded.hour")
}

func TestChunks(t *testing.T) {
	assert.Nil(t, chunks(0, 500))
	assert.Equal(t, [][2]int{{0, 3}}, chunks(3, 500))
	assert.Equal(t, [][2]int{{0, 500}, {500, 1000}, {1000, 1001}}, chunks(1001, 500))
}

func TestDateValueScan(t *testing.T) {
	kyiv := time.FixedZone("EET", 2*3600)
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, src := range []any{
		time.Date(2024, 3, 1, 0, 0, 0, 0, kyiv),
		"2024-03-01",
		"2024-03-01T00:00:00Z",
		[]byte("2024-03-01"),
	} {
		var d dateValue
		assert.NoError(t, d.Scan(src))
		assert.Equal(t, want, d.Time)
	}

	var d dateValue
	assert.Error(t, d.Scan(42))
	assert.Error(t, d.Scan("yesterday"))
}
