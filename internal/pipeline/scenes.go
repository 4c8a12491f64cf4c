package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/phrazzld/reelchain/internal/generation"
)

// Storyboard defaults.
const (
	DefaultAudioDuration = 60 * time.Second
	MinScenes            = 4
	MaxScenes            = 24
	secondsPerScene      = 4.0

	// MaxScriptChars matches the voice service input limit.
	MaxScriptChars = 5000
)

// Dimension strings recorded with the audio and storyboard.
const (
	DimensionsPortrait  = "width=1080&height=1920"
	DimensionsLandscape = "width=1920&height=1080"
)

// Image sizes for each rendition.
var (
	PreviewSize   = generation.ImageSize{Width: 512, Height: 512}
	DisplaySize   = generation.ImageSize{Width: 1024, Height: 1024}
	PortraitSize  = generation.ImageSize{Width: 1080, Height: 1920}
	LandscapeSize = generation.ImageSize{Width: 1920, Height: 1080}
)

// imageStyle is appended to every scene description before rendering.
const imageStyle = "natural colors, minimalist background, high quality, detailed, professional photography"

// SceneCount returns the number of scenes for narration of duration: one
// scene per four seconds, clamped to [MinScenes, MaxScenes].
func SceneCount(duration time.Duration) int {
	n := int(math.Round(duration.Seconds() / secondsPerScene))
	return max(MinScenes, min(MaxScenes, n))
}

// IsPortrait reports whether narration of duration is cut as a vertical video.
func IsPortrait(duration time.Duration) bool {
	return duration <= 60*time.Second
}

// Dimensions returns the dimension string for narration of duration.
func Dimensions(duration time.Duration) string {
	if IsPortrait(duration) {
		return DimensionsPortrait
	}
	return DimensionsLandscape
}

// HDSize returns the full-resolution image size for narration of duration.
func HDSize(duration time.Duration) generation.ImageSize {
	if IsPortrait(duration) {
		return PortraitSize
	}
	return LandscapeSize
}

// Promptify turns a scene description into an image prompt.
func Promptify(description string) string {
	return "Realistic " + strings.TrimSpace(description) + ", " + imageStyle
}

var fence = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

// ParseSentiments extracts the scene list from a model reply, which may be
// wrapped in a Markdown code fence or surrounded by prose. Scenes without a
// description are dropped and missing numbers are filled in order.
func ParseSentiments(reply string) ([]Scene, error) {
	text := strings.TrimSpace(reply)
	if m := fence.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		text = text[start : end+1]
	}

	var payload struct {
		Sentiments []Scene `json:"sentiments"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("%w: scene reply is not valid JSON: %v", generation.ErrInvalidResponse, err)
	}
	if payload.Sentiments == nil {
		return nil, fmt.Errorf("%w: scene reply has no sentiments", generation.ErrInvalidResponse)
	}

	scenes := make([]Scene, 0, len(payload.Sentiments))
	for _, s := range payload.Sentiments {
		s.SceneDescription = strings.TrimSpace(s.SceneDescription)
		if s.SceneDescription == "" {
			continue
		}
		if s.SceneNumber <= 0 {
			s.SceneNumber = len(scenes) + 1
		}
		s.Metadata = nil
		scenes = append(scenes, s)
	}
	if len(scenes) == 0 {
		return nil, fmt.Errorf("%w: scene reply has no usable scenes", generation.ErrInvalidResponse)
	}
	return scenes, nil
}

// TrimScript shortens s to at most limit characters, preferring to cut at
// the end of a sentence in the second half of the allowance.
func TrimScript(s string, limit int) (string, bool) {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	cut := string([]rune(s)[:limit])
	if i := strings.LastIndexAny(cut, ".!?\n"); i >= len(cut)/2 {
		cut = cut[:i+1]
	}
	return strings.TrimSpace(cut), true
}
