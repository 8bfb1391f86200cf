// Package pageflow drives the three-page reveal experience: a loading page,
// a "shake your phone" page and the couplet reveal with its animation steps.
//
// The Controller is an explicit state machine fed by shake events and user
// actions; every delayed animation is a cancellable Step of a Sequence.
package pageflow
