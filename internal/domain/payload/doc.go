// Package payload normalizes the loosely-typed JSON records coming out of
// the shared store. Every decoder validates shape and either produces a
// typed value or rejects the record; nothing here panics on malformed
// input.
package payload
