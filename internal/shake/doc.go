// Package shake turns a stream of 3-axis accelerometer samples into discrete,
// debounced shake notifications.
//
// A Detector subscribes to a Source, compares every sample with the previous
// one and dispatches a motion.Event when at least two axes moved by more than
// the configured threshold, at most once per timeout window. Events fan out
// through a Bus to any number of observers.
package shake
