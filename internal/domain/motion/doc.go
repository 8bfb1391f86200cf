// Package motion contains the core domain types shared by the detector,
// the motion sources and the event transports.
//
// It defines Sample (one accelerometer reading) and Event (one accepted
// shake occurrence).
package motion
