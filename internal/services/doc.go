// Package services holds the error classification shared by cutroom's
// collaborator clients (media resolver, encoder/muxer) and the export
// pipeline. Sentinel markers let callers distinguish fatal configuration and
// validation failures from transient ones without string matching.
package services
