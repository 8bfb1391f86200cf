// Package natsbus bridges the shake detector to NATS.
//
// Source subscribes to a sample subject and feeds the detector; Publisher is a
// bus observer that publishes every accepted shake as JSON.
package natsbus
