package geocell

import (
	"github.com/mmcloughlin/geohash"

	"fieldserve/dispatch/dispatch-backend/pkg/faults"
)

// DefaultPrecision is the system-wide geohash length. At 8 characters a
// cell spans roughly 150-600 m, which keeps the neighbor fan-out small
// without producing over-wide candidate sets.
const DefaultPrecision uint = 8

// Encode converts coordinates to a fixed-precision cell id.
func Encode(lat, lng float64, precision uint) (string, error) {
	if err := validate(lat, lng); err != nil {
		return "", err
	}
	return geohash.EncodeWithPrecision(lat, lng, precision), nil
}

// Neighbors returns the cell itself plus its 8 adjacent cells at the same
// precision.
func Neighbors(cell string) []string {
	return append([]string{cell}, geohash.Neighbors(cell)...)
}

// Decode returns the approximate center of a cell.
func Decode(cell string) (lat, lng float64) {
	return geohash.DecodeCenter(cell)
}

// CellWidthDegrees returns the lat/lng span of a cell, used to bound the
// decode error.
func CellWidthDegrees(cell string) (latSpan, lngSpan float64) {
	box := geohash.BoundingBox(cell)
	return box.MaxLat - box.MinLat, box.MaxLng - box.MinLng
}

func validate(lat, lng float64) error {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return faults.Validation("INVALID_COORDINATE", "coordinates out of range: (%f, %f)", lat, lng)
	}
	return nil
}
