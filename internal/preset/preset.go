// Package preset defines the fixed export quality presets.
package preset

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownPreset reports a preset name outside the fixed table.
var ErrUnknownPreset = errors.New("unknown quality preset")

// Quality describes the target rendition of an export.
type Quality struct {
	Name        string `json:"name"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	BitrateKbps int    `json:"bitrate_kbps"`
	FPS         int    `json:"fps"`
}

var table = map[string]Quality{
	"720p":  {Name: "720p", Width: 1280, Height: 720, BitrateKbps: 3000, FPS: 30},
	"1080p": {Name: "1080p", Width: 1920, Height: 1080, BitrateKbps: 6000, FPS: 30},
	"4k":    {Name: "4k", Width: 3840, Height: 2160, BitrateKbps: 9000, FPS: 30},
}

// Lookup resolves a preset by name.
func Lookup(name string) (Quality, error) {
	quality, ok := table[name]
	if !ok {
		return Quality{}, fmt.Errorf("%w %q (known: %v)", ErrUnknownPreset, name, Names())
	}
	return quality, nil
}

// Names returns the known preset names in stable order.
func Names() []string {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FrameIntervalMs returns the milliseconds between export frames.
func (q Quality) FrameIntervalMs() float64 {
	return 1000.0 / float64(q.FPS)
}
