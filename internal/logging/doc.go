// Package logging builds the slog loggers used across cutroom. It provides
// a console handler for interactive use, a JSON handler for machine
// consumption, and attribute helpers so log fields stay consistently named
// between the daemon, the scheduler, and the export pipeline.
package logging
