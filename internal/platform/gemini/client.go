package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/phrazzld/reelchain/internal/domain"
	"github.com/phrazzld/reelchain/internal/generation"
)

// DefaultModel is the model used when Config.Model is empty.
const DefaultModel = "gemini-1.5-flash"

// verifyPrompt is sent by Verify to check that a key is usable.
const verifyPrompt = "Reply with the single word OK."

// Config configures a Client.
type Config struct {
	APIKey string
	Model  string
}

// contentGenerator is the subset of genai.Models used by Client.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client generates text with a Gemini model.
type Client struct {
	models contentGenerator
	model  string
	logger *slog.Logger
}

// New creates a Client for cfg.
//
// Parameters:
//   - ctx: Context for client construction
//   - cfg: API key and model name
//   - logger: Structured logger for request logging
//
// Returns:
//   - A ready Client, or a configuration error when the key is missing or
//     the genai client cannot be built
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	const op = "gemini.New"

	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, domain.E(domain.KindConfiguration, op,
			fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, domain.E(domain.KindConfiguration, op,
			fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err))
	}

	return newClient(client.Models, cfg.Model, logger), nil
}

func newClient(models contentGenerator, model string, logger *slog.Logger) *Client {
	return &Client{
		models: models,
		model:  model,
		logger: logger.With("component", "gemini", "model", model),
	}
}

// Generate sends prompt to the model and returns the text of the first
// candidate.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	const op = "gemini.Generate"

	if strings.TrimSpace(prompt) == "" {
		return "", domain.Errorf(domain.KindValidation, op, "prompt cannot be empty")
	}

	c.logger.DebugContext(ctx, "making Gemini API call", "prompt_length", len(prompt))

	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", classify(op, err)
	}

	text, err := extractText(resp)
	if err != nil {
		c.logger.WarnContext(ctx, "unusable Gemini response", "error", err)
		return "", domain.E(domain.KindValidation, op, err)
	}

	c.logger.DebugContext(ctx, "Gemini API call successful", "response_length", len(text))
	return text, nil
}

// Verify makes a minimal request to confirm that the key and model work.
func (c *Client) Verify(ctx context.Context) error {
	if _, err := c.Generate(ctx, verifyPrompt); err != nil {
		return fmt.Errorf("verify gemini credentials: %w", err)
	}
	return nil
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("%w: prompt blocked (%s)", generation.ErrContentBlocked, resp.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate == nil {
		return "", fmt.Errorf("%w: nil candidate", generation.ErrInvalidResponse)
	}
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: response blocked", generation.ErrContentBlocked)
	}
	if candidate.Content == nil {
		return "", fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("%w: empty text in response", generation.ErrInvalidResponse)
	}
	return text, nil
}

// classify maps genai failures onto error kinds.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			if strings.Contains(apiErr.Message, "API key") || apiErr.Code != http.StatusBadRequest {
				return domain.E(domain.KindValidation, op,
					fmt.Errorf("%w: %s", generation.ErrInvalidCredentials, apiErr.Message))
			}
			return domain.E(domain.KindValidation, op, err)
		case http.StatusNotFound:
			return domain.E(domain.KindConfiguration, op, err)
		}
	}
	return domain.E(domain.KindExternalService, op, err)
}
