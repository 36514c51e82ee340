// Package queue persists the editing model and the export job queue in
// SQLite. Projects and their effects are written through the API and
// carry a last-write-wins conflict check on the project timestamp. Export
// jobs move through a one-directional status lifecycle enforced by the
// store; only failed jobs may return to pending.
//
// The database uses WAL mode with a busy timeout, and writes retry on
// SQLITE_BUSY. Schema changes go in a new numbered file under
// migrations/.
package queue
