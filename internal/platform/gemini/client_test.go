package gemini

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/phrazzld/reelchain/internal/domain"
	"github.com/phrazzld/reelchain/internal/generation"
)

type fakeModels struct {
	resp    *genai.GenerateContentResponse
	err     error
	model   string
	prompts []string
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	for _, c := range contents {
		for _, p := range c.Parts {
			f.prompts = append(f.prompts, p.Text)
		}
	}
	return f.resp, f.err
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: "model"}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: content, FinishReason: genai.FinishReasonStop}},
	}
}

func testClient(f *fakeModels) *Client {
	return newClient(f, DefaultModel, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()
	_, err := New(context.Background(), Config{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
}

func TestGenerate(t *testing.T) {
	t.Parallel()
	f := &fakeModels{resp: textResponse("Ten facts ", "about otters\n")}
	c := testClient(f)

	text, err := c.Generate(context.Background(), "write about otters")
	require.NoError(t, err)
	assert.Equal(t, "Ten facts about otters", text)
	assert.Equal(t, DefaultModel, f.model)
	assert.Equal(t, []string{"write about otters"}, f.prompts)
}

func TestGenerateRejectsEmptyPrompt(t *testing.T) {
	t.Parallel()
	_, err := testClient(&fakeModels{}).Generate(context.Background(), "  ")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestGenerateUnusableResponses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want error
	}{
		{name: "nil response", resp: nil, want: generation.ErrInvalidResponse},
		{name: "no candidates", resp: &genai.GenerateContentResponse{}, want: generation.ErrInvalidResponse},
		{
			name: "safety block",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}},
			want: generation.ErrContentBlocked,
		},
		{
			name: "no content",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonStop}}},
			want: generation.ErrInvalidResponse,
		},
		{name: "blank text", resp: textResponse("  "), want: generation.ErrInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testClient(&fakeModels{resp: tt.resp}).Generate(context.Background(), "prompt")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, domain.KindValidation, domain.KindOf(err))
		})
	}
}

func TestGenerateClassifiesAPIErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		kind      domain.Kind
		invalidID bool
	}{
		{
			name:      "invalid key",
			err:       genai.APIError{Code: http.StatusBadRequest, Message: "API key not valid. Please pass a valid API key."},
			kind:      domain.KindValidation,
			invalidID: true,
		},
		{
			name:      "forbidden",
			err:       genai.APIError{Code: http.StatusForbidden, Message: "permission denied"},
			kind:      domain.KindValidation,
			invalidID: true,
		},
		{
			name: "bad request",
			err:  genai.APIError{Code: http.StatusBadRequest, Message: "invalid argument"},
			kind: domain.KindValidation,
		},
		{
			name: "unknown model",
			err:  genai.APIError{Code: http.StatusNotFound, Message: "model not found"},
			kind: domain.KindConfiguration,
		},
		{
			name: "rate limited",
			err:  genai.APIError{Code: http.StatusTooManyRequests, Message: "quota"},
			kind: domain.KindExternalService,
		},
		{
			name: "transport",
			err:  errors.New("dial tcp: connection refused"),
			kind: domain.KindExternalService,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testClient(&fakeModels{err: tt.err}).Generate(context.Background(), "prompt")
			require.Error(t, err)
			assert.Equal(t, tt.kind, domain.KindOf(err))
			assert.Equal(t, tt.invalidID, errors.Is(err, generation.ErrInvalidCredentials))
		})
	}
}

func TestGeneratePassesCancellationThrough(t *testing.T) {
	t.Parallel()
	_, err := testClient(&fakeModels{err: context.Canceled}).Generate(context.Background(), "prompt")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVerify(t *testing.T) {
	t.Parallel()
	f := &fakeModels{resp: textResponse("OK")}
	require.NoError(t, testClient(f).Verify(context.Background()))
	assert.Equal(t, []string{verifyPrompt}, f.prompts)

	err := testClient(&fakeModels{err: genai.APIError{Code: http.StatusUnauthorized}}).Verify(context.Background())
	assert.ErrorIs(t, err, generation.ErrInvalidCredentials)
}
