// Package logger sets up the process-wide JSON slog logger and carries
// request-scoped loggers (with trace ids) through contexts.
package logger
