package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// ProbeResult is the parsed ffprobe inspection of a source media file.
type ProbeResult struct {
	Streams []ProbeStream `json:"streams"`
	Format  ProbeFormat   `json:"format"`
}

// ProbeStream describes a single stream in the media container.
type ProbeStream struct {
	Index     int    `json:"index"`
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Duration  string `json:"duration"`
	Channels  int    `json:"channels"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// ProbeFormat captures container-level metadata.
type ProbeFormat struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
}

// Probe executes ffprobe against path and decodes the JSON output.
func Probe(ctx context.Context, binary, path string) (ProbeResult, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return ProbeResult{}, errors.New("probe: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return ProbeResult{}, fmt.Errorf("probe %s: %w: %s", path, err, strings.TrimSpace(string(output)))
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return ProbeResult{}, fmt.Errorf("probe parse: %w", err)
	}
	return result, nil
}

// HasAudioStream reports whether the container carries a usable audio
// stream. Zero-length audio streams count as absent so exports can exclude
// them instead of failing the mix.
func (r ProbeResult) HasAudioStream() bool {
	for _, stream := range r.Streams {
		if stream.CodecType != "audio" {
			continue
		}
		if d, ok := parseSeconds(stream.Duration); ok && d <= 0 {
			continue
		}
		return true
	}
	return false
}

// DurationMs returns the container duration in whole milliseconds.
func (r ProbeResult) DurationMs() (int64, bool) {
	seconds, ok := parseSeconds(r.Format.Duration)
	if !ok {
		return 0, false
	}
	return int64(math.Round(seconds * 1000)), true
}

func parseSeconds(value string) (float64, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0, false
	}
	return seconds, true
}
