// Package common holds helpers shared by several services.
//
// It provides a lightweight gRPC client for the shake service with call
// timeouts, and detects the origin (username@hostname) sent with every call.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
