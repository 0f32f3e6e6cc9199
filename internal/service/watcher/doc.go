// Package watcher runs the client-side alarm process: it subscribes one
// subject's live record and the zone set, sounds a console alarm while the
// subject is inside a hazard zone, and lets the operator acknowledge it
// from standard input.
package watcher
