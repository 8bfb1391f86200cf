// Package replay implements the shake-replay binary, which streams a recorded
// accelerometer trace to a shake server over Push.
package replay
