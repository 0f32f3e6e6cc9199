// Package store defines the shared mutable state abstraction the redzone
// services coordinate through: loosely-typed JSON values addressed by
// path, full-snapshot subscriptions, unconditional last-writer-wins
// writes, and an optimistic read-modify-write transaction.
//
// Two backends implement it: memory (in-process, reference semantics) and
// redis (WATCH/MULTI optimistic transactions, pub/sub change delivery).
package store
