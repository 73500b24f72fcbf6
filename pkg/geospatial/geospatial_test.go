package geospatial

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKm(t *testing.T) {
	// Pune city center to Hinjewadi, roughly 15 km apart.
	d := DistanceKm(18.5204, 73.8567, 18.5913, 73.7389)
	assert.InDelta(t, 15, d, 2)

	// Same point.
	assert.InDelta(t, 0, DistanceKm(18.54, 73.86, 18.54, 73.86), 1e-9)
}

func TestEstimateETA(t *testing.T) {
	minutes, formatted := EstimateETA(2.5, 30)
	assert.Equal(t, 5, minutes)
	assert.Equal(t, "5 min", formatted)

	minutes, formatted = EstimateETA(0.1, 30)
	assert.Equal(t, 1, minutes)
	assert.Equal(t, "1 min", formatted)

	minutes, formatted = EstimateETA(0, 30)
	assert.Equal(t, 0, minutes)
	assert.Equal(t, "< 1 min", formatted)

	minutes, formatted = EstimateETA(45, 30)
	assert.Equal(t, 90, minutes)
	assert.Equal(t, "1h 30m", formatted)
}

func TestEstimateETAFallsBackToDefaultSpeed(t *testing.T) {
	minutes, _ := EstimateETA(30, 0)
	assert.Equal(t, 60, minutes)
}

func TestValidateCoordinates(t *testing.T) {
	assert.NoError(t, ValidateCoordinates(18.54, 73.86))
	assert.Error(t, ValidateCoordinates(95, 0))
	assert.Error(t, ValidateCoordinates(0, -200))
}
