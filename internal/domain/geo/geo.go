package geo

import (
	"math"
	"time"
)

// earthRadiusMeters is the mean earth radius used by the great-circle formula.
const earthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate pair.
type Point struct {
	// Lat is the latitude in decimal degrees.
	Lat float64 `json:"lat"`
	// Lng is the longitude in decimal degrees.
	Lng float64 `json:"lng"`
}

// Contains reports whether the point lies inside the polygon described by
// ring, using the even-odd ray-casting rule. A ring with fewer than three
// vertices never contains anything. The crossing test is strict on one
// vertex latitude and non-strict on the other, so shared vertices are not
// double-counted; classification of points exactly on an edge is
// unspecified.
func Contains(p Point, ring []Point) bool {
	n := len(ring)
	if n < 3 {
		return false
	}

	var (
		inside = false
		x      = p.Lng
		y      = p.Lat
	)

	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		var (
			xi, yi = ring[i].Lng, ring[i].Lat
			xj, yj = ring[j].Lng, ring[j].Lat
		)

		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}

	return inside
}

// Haversine returns the great-circle distance between two points in meters.
func Haversine(a, b Point) float64 {
	var (
		dLat = toRadians(b.Lat - a.Lat)
		dLng = toRadians(b.Lng - a.Lng)
	)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Lat))*math.Cos(toRadians(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)

	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// ETA estimates the travel time between two points assuming a constant
// speed in kilometers per hour. Non-positive speeds yield zero.
func ETA(a, b Point, speedKmh float64) time.Duration {
	if speedKmh <= 0 {
		return 0
	}

	var (
		meters         = Haversine(a, b)
		metersPerHour  = speedKmh * 1000
		hours          = meters / metersPerHour
		nanosecondsPer = float64(time.Hour)
	)

	return time.Duration(hours * nanosecondsPer)
}

// toRadians converts decimal degrees to radians.
func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
