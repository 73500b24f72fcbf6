package geospatial

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"fieldserve/dispatch/dispatch-backend/pkg/faults"
)

// DefaultSpeedKmh is the assumed travel speed used for ETA estimates when
// no routing provider is configured.
const DefaultSpeedKmh = 30.0

// ValidateCoordinates checks a lat/lng pair against the valid ranges.
func ValidateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return faults.Validation("INVALID_COORDINATE", "coordinates out of range: (%f, %f)", lat, lng)
	}
	return nil
}

// DistanceKm returns the great-circle (haversine) distance between two
// points in kilometers.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	a := orb.Point{lng1, lat1}
	b := orb.Point{lng2, lat2}
	return geo.DistanceHaversine(a, b) / 1000
}

// EstimateETA converts a distance to a travel-time estimate at the given
// speed. Returns whole minutes (rounded up) and a display string.
func EstimateETA(distanceKm, speedKmh float64) (int, string) {
	if speedKmh <= 0 {
		speedKmh = DefaultSpeedKmh
	}
	minutes := int(math.Ceil(distanceKm / speedKmh * 60))
	return minutes, FormatMinutes(minutes)
}

// FormatMinutes renders a minute count as a display string.
func FormatMinutes(minutes int) string {
	switch {
	case minutes < 1:
		return "< 1 min"
	case minutes < 60:
		return fmt.Sprintf("%d min", minutes)
	default:
		return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
	}
}
