// Package logging assembles structured slog loggers and formatting helpers used
// across viralforge.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code can tag log lines
// with task IDs, stages, production job IDs, and correlation IDs. A no-op
// logger is provided for tests and wiring code that cannot fail.
package logging
