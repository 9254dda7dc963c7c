// Package logging assembles structured slog loggers and formatting helpers used
// across the gateway.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so request handling can tag log
// lines with the correlation ID assigned to each conversion. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits data with the same shape.
package logging
