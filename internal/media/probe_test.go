package media

import "testing"

func TestHasAudioStreamSkipsZeroLength(t *testing.T) {
	result := ProbeResult{Streams: []ProbeStream{
		{CodecType: "video", CodecName: "h264"},
		{CodecType: "audio", CodecName: "aac", Duration: "0.0"},
	}}
	if result.HasAudioStream() {
		t.Fatalf("zero-length audio must count as absent")
	}

	result.Streams = append(result.Streams, ProbeStream{CodecType: "audio", CodecName: "aac", Duration: "12.5", Channels: 2})
	if !result.HasAudioStream() {
		t.Fatalf("expected audio stream")
	}
}

func TestHasAudioStreamWithoutDurationField(t *testing.T) {
	result := ProbeResult{Streams: []ProbeStream{{CodecType: "audio", CodecName: "opus"}}}
	if !result.HasAudioStream() {
		t.Fatalf("audio stream without duration metadata still counts")
	}
}

func TestDurationMs(t *testing.T) {
	result := ProbeResult{Format: ProbeFormat{Duration: "4.5"}}
	ms, ok := result.DurationMs()
	if !ok || ms != 4500 {
		t.Fatalf("expected 4500ms, got %d ok=%v", ms, ok)
	}
	if _, ok := (ProbeResult{}).DurationMs(); ok {
		t.Fatalf("missing duration must not parse")
	}
}
