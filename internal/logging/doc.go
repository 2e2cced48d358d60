// Package logging assembles structured slog loggers and formatting helpers used
// across caravel components.
//
// It owns the console/JSON handlers, maps CLI verbosity to levels, fans output
// out to stdout and the per-run log file, and exposes context helpers so every
// line emitted while a mount is processed carries the run id, mount name and
// pipeline stage. Components receive their logger at construction time; there
// is no package-level logger.
package logging
