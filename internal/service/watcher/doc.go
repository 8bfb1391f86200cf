// Package watcher implements the shake-watch binary: it follows the Watch
// stream of a shake server, logs every shake and reconnects when the stream
// breaks.
package watcher
