package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow(t *testing.T) {
	now := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)

	w, err := window("", "", 3, now)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-17..2024-03-20", w.String())

	w, err = window("2024-03-01", "", 3, now)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01..2024-03-01", w.String())

	w, err = window("2024-03-01", "2024-03-05", 0, now)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01..2024-03-05", w.String())

	_, err = window("2024-03-05", "2024-03-01", 0, now)
	assert.Error(t, err)
	_, err = window("", "2024-03-01", 0, now)
	assert.Error(t, err)
	_, err = window("March 1", "", 0, now)
	assert.Error(t, err)
}
