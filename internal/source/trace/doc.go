// Package trace provides a motion source that tails a CSV accelerometer log.
//
// The follower reads every complete row already in the file, then keeps
// watching it with fsnotify and delivers rows as the logger appends them.
package trace
