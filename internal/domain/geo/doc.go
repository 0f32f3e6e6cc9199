// Package geo contains the pure geometry used by the alert and dispatch
// services: even-odd ray-casting containment, great-circle distance, and
// constant-speed ETA estimation. Everything here is deterministic, free of
// side effects, and safe for concurrent use.
package geo
