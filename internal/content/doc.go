// Package content holds the eight couplet compositions revealed after a shake.
package content
