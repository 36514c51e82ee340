// Package daemon coordinates the long-running Cutroom process.
//
// It wires configuration, the SQLite store, the export scheduler, the
// heartbeat monitor, and the HTTP API into a single lifecycle with
// flock-based locking to prevent multiple instances. Per-job work lives in
// the export and compositor packages; the daemon focuses on startup,
// shutdown, and high level coordination.
package daemon
