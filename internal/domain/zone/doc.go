// Package zone defines the polygon-bounded areas managed by disaster
// administrators and the parser that normalizes their heterogeneous store
// records (array- or map-shaped vertex payloads, verbatim kind values)
// into uniform entities.
package zone
