package deps

import "strings"

// ResolveFFmpegPath returns the configured ffmpeg binary, falling back to
// resolving "ffmpeg" from PATH.
func ResolveFFmpegPath(configured string) string {
	if trimmed := strings.TrimSpace(configured); trimmed != "" {
		return trimmed
	}
	return "ffmpeg"
}

// ResolveFFprobePath returns the configured ffprobe binary, falling back to
// resolving "ffprobe" from PATH.
func ResolveFFprobePath(configured string) string {
	if trimmed := strings.TrimSpace(configured); trimmed != "" {
		return trimmed
	}
	return "ffprobe"
}
