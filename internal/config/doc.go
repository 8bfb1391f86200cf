// Package config defines the settings shared by the shake-couplet binaries
// and provides helpers to load, validate and save them in YAML format.
//
// Zero values fall back to defaults; malformed detector values are rejected.
package config
