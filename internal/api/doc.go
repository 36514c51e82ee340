// Package api is the shared service layer between the HTTP surface and
// the CLI. It converts store rows into transport views and owns the
// request-level validation for project and export operations.
package api
