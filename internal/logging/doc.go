// Package logging builds the zerolog loggers used across contentloader.
//
// A logger is configured from Config (level, format, output, optional file) and
// carried through context.Context so that loaders, stores and fetchers log with
// the same trace id as the command that invoked them. Every component derives a
// child logger with ComponentLogger so log lines can be filtered per subsystem.
package logging
