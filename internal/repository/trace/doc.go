// Package trace implements persistence for recorded motion traces.
//
// A trace is a CSV file with one accelerometer sample per row. The
// FileRepository loads and saves whole traces, Recorder appends samples as
// they arrive and ParseRow understands the column layouts produced by common
// sensor loggers.
package trace
