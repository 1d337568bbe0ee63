// Package log wraps zerolog with a process-global logger configured once
// at startup. Components derive child loggers via WithComponent and
// WithJobID so every event carries correlation fields.
package log
