// Package instance keeps a single copy of an interactive binary running.
package instance
