// Package dispatch coordinates responder-to-subject assignment over the
// shared store. Concurrent responders racing for the same subject are
// resolved with an optimistic transaction: exactly one wins, the rest
// observe a clean no-op. Ranking orders help requests by straight-line
// travel time from the responder's position.
package dispatch
