// Package logger provides structured logging.
//
// It wraps log/slog with level parsing, a process-wide dynamic level
// that can be flipped at runtime (config reload, SIGHUP), and context
// propagation of a connection-scoped logger.
package logger
