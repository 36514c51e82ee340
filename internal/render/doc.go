// Package render provides the offscreen surface used when no host UI is
// attached. It rasterizes the compositor's node tree into RGBA frames:
// media nodes are sampled out of their sources with ffmpeg, text nodes
// are drawn in-process.
package render
