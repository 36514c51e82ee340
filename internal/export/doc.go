// Package export renders a project's effect timeline into a finished
// media file. A pipeline walks the timeline frame by frame through the
// compositor, streams frames into the encoder, extracts and mixes the
// audible clips in parallel, and muxes the result into the output
// directory. Each job works inside its own staging workspace, removed on
// every exit path.
package export
