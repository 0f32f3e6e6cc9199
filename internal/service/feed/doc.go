// Package feed adapts the shared store's raw snapshot streams into typed
// domain updates: the complete zone set and single-subject location
// records. Each feed owns its subscription and guarantees release through
// Close on every exit path.
package feed
