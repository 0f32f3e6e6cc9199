// Package zones persists zone definitions in SQLite. The live store is the
// source of truth while the server runs; this repository exists so the
// zone set survives a server restart and is republished at boot.
package zones
