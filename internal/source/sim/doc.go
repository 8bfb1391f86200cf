// Package sim generates synthetic accelerometer samples for demos and tests.
//
// The simulated device rests flat (gravity on Z with a little sensor noise)
// and is shaken in short bursts on a fixed period.
package sim
