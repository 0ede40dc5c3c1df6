package geospatial

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// PointDistance returns the great-circle distance in meters between two
// [lng, lat] points.
func PointDistance(a, b orb.Point) float64 {
	return geo.DistanceHaversine(a, b)
}
