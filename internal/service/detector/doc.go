// Package detector watches one subject against the hazard zone set and
// drives the alarm state machine (idle, sounding, acknowledged).
//
// The transition logic is the pure Evaluate function, recomputed on every
// feed update; the Detector type adds the subscriptions, the siren side
// effect and teardown guarantees around it.
package detector
