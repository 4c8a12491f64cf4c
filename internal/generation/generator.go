package generation

import (
	"context"
	"time"
)

// TextGenerator produces text from a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// VoiceSynthesizer turns narration text into encoded audio.
type VoiceSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// AudioInfo describes decoded audio.
type AudioInfo struct {
	Duration   time.Duration
	SampleRate int
	Channels   int
}

// AudioProber inspects encoded audio.
type AudioProber interface {
	Probe(audio []byte) (AudioInfo, error)
}

// ImageSize is a pixel width and height.
type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ImageRenderer returns the URL of an image rendered for prompt.
// The same seed yields the same image.
type ImageRenderer interface {
	ImageURL(prompt string, size ImageSize, seed int) string
}
