// Package encoder wraps the external ffmpeg binary behind a small
// interface: a streaming rawvideo encode fed frame by frame, plus the
// audio extract/mix/mux passes the export pipeline runs around it.
package encoder
