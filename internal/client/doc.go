// Package client is the HTTP client for the daemon API. The CLI uses it
// for every operation that needs a running daemon.
package client
