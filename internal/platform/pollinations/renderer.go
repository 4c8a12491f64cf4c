// Package pollinations builds image URLs for the Pollinations image service.
// Images are rendered lazily by the service when the URL is fetched, so
// building a URL never performs I/O.
package pollinations

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/phrazzld/reelchain/internal/generation"
)

// Defaults for New.
const (
	DefaultBaseURL = "https://image.pollinations.ai"
	DefaultModel   = "Flux"
)

// Renderer implements generation.ImageRenderer.
type Renderer struct {
	baseURL string
	model   string
}

// New creates a Renderer. Empty arguments select the defaults.
func New(baseURL, model string) *Renderer {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Renderer{baseURL: strings.TrimRight(baseURL, "/"), model: model}
}

// ImageURL returns the URL of prompt rendered at size with seed.
func (r *Renderer) ImageURL(prompt string, size generation.ImageSize, seed int) string {
	return fmt.Sprintf("%s/prompt/%s?width=%d&height=%d&nologo=poll&nofeed=yes&model=%s&seed=%d",
		r.baseURL, url.PathEscape(prompt), size.Width, size.Height, url.QueryEscape(r.model), seed)
}
