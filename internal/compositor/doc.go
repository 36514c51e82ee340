// Package compositor drives frame composition for playback and export. It
// owns the current timecode, diffs the visible-effect set per compose
// (tearing down effects that left scope, materializing ones that entered,
// leaving the rest untouched), and renders through a host-provided Surface.
// The same compose path serves the interactive preview and the offline
// export, which is what makes exported frames byte-identical to the preview.
package compositor
