package geo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// square is a 10x10 degree ring around the origin used by containment tests.
var square = []Point{
	{Lat: 0, Lng: 0},
	{Lat: 0, Lng: 10},
	{Lat: 10, Lng: 10},
	{Lat: 10, Lng: 0},
}

// TestContains_DegenerateRings verifies that rings with fewer than three
// vertices never contain any point.
func TestContains_DegenerateRings(t *testing.T) {
	t.Parallel()

	p := Point{Lat: 5, Lng: 5}

	require.False(t, Contains(p, nil))
	require.False(t, Contains(p, []Point{}))
	require.False(t, Contains(p, square[:1]))
	require.False(t, Contains(p, square[:2]))
}

// TestContains_Square verifies interior and exterior classification on the
// canonical square ring.
func TestContains_Square(t *testing.T) {
	t.Parallel()

	require.True(t, Contains(Point{Lat: 5, Lng: 5}, square))
	require.False(t, Contains(Point{Lat: 15, Lng: 15}, square))

	// Far outside the bounding box in every direction.
	require.False(t, Contains(Point{Lat: -40, Lng: 5}, square))
	require.False(t, Contains(Point{Lat: 5, Lng: 170}, square))
}

// TestContains_ConvexPolygon verifies a non-rectangular convex ring.
func TestContains_ConvexPolygon(t *testing.T) {
	t.Parallel()

	triangle := []Point{
		{Lat: 0, Lng: 0},
		{Lat: 0, Lng: 6},
		{Lat: 6, Lng: 3},
	}

	require.True(t, Contains(Point{Lat: 1, Lng: 3}, triangle))
	require.False(t, Contains(Point{Lat: 5, Lng: 0.5}, triangle))
}

// TestContains_HazardScenario reproduces the coordinates used by the alert
// flow: a small ring near Chennai containing the subject's reported point.
func TestContains_HazardScenario(t *testing.T) {
	t.Parallel()

	ring := []Point{
		{Lat: 13.0, Lng: 80.0},
		{Lat: 13.1, Lng: 80.0},
		{Lat: 13.1, Lng: 80.1},
		{Lat: 13.0, Lng: 80.1},
	}

	require.True(t, Contains(Point{Lat: 13.05, Lng: 80.05}, ring))
	require.False(t, Contains(Point{Lat: 14.0, Lng: 80.0}, ring))
}

// TestHaversine verifies the great-circle distance against known values.
func TestHaversine(t *testing.T) {
	t.Parallel()

	// Identical points.
	require.Zero(t, Haversine(Point{Lat: 13, Lng: 80}, Point{Lat: 13, Lng: 80}))

	// One degree of latitude is roughly 111.2 km.
	d := Haversine(Point{Lat: 13, Lng: 80}, Point{Lat: 14, Lng: 80})
	require.InDelta(t, 111195, d, 200)

	// Symmetry.
	require.InDelta(t,
		Haversine(Point{Lat: 13, Lng: 80}, Point{Lat: 13.5, Lng: 80.5}),
		Haversine(Point{Lat: 13.5, Lng: 80.5}, Point{Lat: 13, Lng: 80}),
		1e-6)
}

// TestETA verifies the constant-speed travel estimate and its guard rails.
func TestETA(t *testing.T) {
	t.Parallel()

	a := Point{Lat: 13, Lng: 80}
	b := Point{Lat: 14, Lng: 80}

	// ~111.2 km at 30 km/h is about 3.7 hours.
	eta := ETA(a, b, 30)
	require.InDelta(t, 3.7, eta.Hours(), 0.1)

	// Farther points take longer at the same speed.
	c := Point{Lat: 15, Lng: 80}
	require.Greater(t, ETA(a, c, 30), eta)

	// Non-positive speed degrades to zero rather than dividing by zero.
	require.Equal(t, time.Duration(0), ETA(a, b, 0))
	require.Equal(t, time.Duration(0), ETA(a, b, -5))
}
