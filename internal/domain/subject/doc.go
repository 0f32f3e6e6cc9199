// Package subject models the live location and assistance status of one
// tracked person, as mirrored from the shared store. Records are mutated
// by the subject (self-reports), the dispatch coordinator (assignment
// transactions), and upstream resets.
package subject
