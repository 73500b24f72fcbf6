package geocell

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"fieldserve/dispatch/dispatch-backend/pkg/faults"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	points := [][2]float64{
		{18.5204, 73.8567}, // Pune
		{0, 0},
		{-33.8688, 151.2093},
		{89.9, -179.9},
	}

	for _, p := range points {
		cell, err := Encode(p[0], p[1], DefaultPrecision)
		assert.NoError(t, err)
		assert.Len(t, cell, int(DefaultPrecision))

		lat, lng := Decode(cell)
		latSpan, lngSpan := CellWidthDegrees(cell)
		assert.LessOrEqual(t, math.Abs(lat-p[0]), latSpan)
		assert.LessOrEqual(t, math.Abs(lng-p[1]), lngSpan)
	}
}

func TestEncodeRejectsInvalidCoordinates(t *testing.T) {
	cases := [][2]float64{
		{91, 0},
		{-91, 0},
		{0, 181},
		{0, -181},
	}
	for _, c := range cases {
		_, err := Encode(c[0], c[1], DefaultPrecision)
		assert.Error(t, err)
		assert.Equal(t, "INVALID_COORDINATE", faults.CodeOf(err))
	}
}

func TestNeighborsIncludesSelfAndEightAdjacent(t *testing.T) {
	cell, err := Encode(18.5204, 73.8567, DefaultPrecision)
	assert.NoError(t, err)

	cells := Neighbors(cell)
	assert.Len(t, cells, 9)
	assert.Equal(t, cell, cells[0])

	seen := make(map[string]bool)
	for _, c := range cells {
		assert.Len(t, c, int(DefaultPrecision))
		assert.False(t, seen[c], "duplicate neighbor %s", c)
		seen[c] = true
	}
}
