// Package media defines the media resolver collaborator contract and an
// ffprobe-backed inspection helper. The core never touches storage or auth:
// everything it knows about source media arrives through a Resolver.
package media
