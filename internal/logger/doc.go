// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a console encoder on stderr,
//   - an optional file sink for interactive binaries that own the terminal,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level configuration and parsing utilities,
//   - convenience functions (Info, WarnKV, etc.).
//
// Services accept a context and extract the logger from it, so every
// binary gets scoped, structured logging.
package logger
