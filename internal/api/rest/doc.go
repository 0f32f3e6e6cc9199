// Package rest exposes the coordination surface over HTTP: zone
// administration, subject self-reporting, responder assignment and queue
// ranking, face matching, and server-sent-event streams mirroring the
// shared store's live feeds.
package rest
