// Package elevenlabs implements generation.VoiceSynthesizer on the
// ElevenLabs text-to-speech API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/phrazzld/reelchain/internal/domain"
	"github.com/phrazzld/reelchain/internal/generation"
	"github.com/phrazzld/reelchain/internal/redact"
)

// Defaults for Config.
const (
	DefaultBaseURL       = "https://api.elevenlabs.io"
	DefaultModel         = "eleven_multilingual_v2"
	DefaultTimeout       = 120 * time.Second
	DefaultMaxAudioBytes = 10 << 20

	// MaxTextLength is the longest script accepted for synthesis, in characters.
	MaxTextLength = 5000
)

// errorBodyLimit bounds how much of an error response is read.
const errorBodyLimit = 512

// Config configures a Client.
type Config struct {
	APIKey        string
	VoiceID       string
	BaseURL       string
	Model         string
	Timeout       time.Duration
	MaxAudioBytes int64
}

// Client calls the ElevenLabs API.
type Client struct {
	http   *http.Client
	cfg    Config
	logger *slog.Logger
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// New validates cfg and creates a Client with a pooled transport.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	const op = "elevenlabs.New"

	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.VoiceID) == "" {
		return nil, domain.E(domain.KindConfiguration, op,
			fmt.Errorf("%w: api key and voice id are required", generation.ErrInvalidConfig))
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxAudioBytes <= 0 {
		cfg.MaxAudioBytes = DefaultMaxAudioBytes
	}
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = cfg.Timeout

	return &Client{
		http:   httpClient,
		cfg:    cfg,
		logger: logger.With("component", "elevenlabs"),
	}, nil
}

// Synthesize converts text to MP3 audio.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	const op = "elevenlabs.Synthesize"

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.Errorf(domain.KindValidation, op, "text cannot be empty")
	}
	if n := utf8.RuneCountInString(text); n > MaxTextLength {
		return nil, domain.Errorf(domain.KindValidation, op,
			"text has %d characters, limit is %d", n, MaxTextLength)
	}

	body, err := json.Marshal(synthesisRequest{
		Text:    text,
		ModelID: c.cfg.Model,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.5,
			Style:           1.0,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return nil, domain.E(domain.KindValidation, op, err)
	}

	endpoint := c.cfg.BaseURL + "/v1/text-to-speech/" + url.PathEscape(c.cfg.VoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, domain.E(domain.KindConfiguration, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(op, resp)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxAudioBytes+1))
	if err != nil {
		return nil, transportError(op, err)
	}
	if int64(len(audio)) > c.cfg.MaxAudioBytes {
		return nil, domain.Errorf(domain.KindValidation, op,
			"generated audio exceeds %d bytes", c.cfg.MaxAudioBytes)
	}
	if len(audio) == 0 {
		return nil, domain.E(domain.KindExternalService, op,
			fmt.Errorf("%w: empty audio", generation.ErrInvalidResponse))
	}

	c.logger.DebugContext(ctx, "speech synthesized",
		"text_length", len(text),
		"audio_bytes", len(audio),
		"duration_ms", time.Since(start).Milliseconds())
	return audio, nil
}

// Verify checks that the key can read the configured voice.
func (c *Client) Verify(ctx context.Context) error {
	const op = "elevenlabs.Verify"

	endpoint := c.cfg.BaseURL + "/v1/voices/" + url.PathEscape(c.cfg.VoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.E(domain.KindConfiguration, op, err)
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, errorBodyLimit))

	if resp.StatusCode != http.StatusOK {
		return statusError(op, resp)
	}
	return nil
}

func transportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.E(domain.KindTimeout, op, err)
	}
	return domain.E(domain.KindExternalService, op, err)
}

func statusError(op string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	detail := redact.String(strings.TrimSpace(string(snippet)))
	err := fmt.Errorf("status %d: %s", resp.StatusCode, detail)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.E(domain.KindValidation, op, fmt.Errorf("%w: %w", generation.ErrInvalidCredentials, err))
	case resp.StatusCode == http.StatusNotFound:
		return domain.E(domain.KindValidation, op, fmt.Errorf("voice not found: %w", err))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return domain.E(domain.KindExternalService, op, err)
	default:
		return domain.E(domain.KindValidation, op, err)
	}
}
