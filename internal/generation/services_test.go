package generation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/reelchain/internal/generation"
)

type staticText string

func (s staticText) Generate(context.Context, string) (string, error) { return string(s), nil }

type staticVoice []byte

func (s staticVoice) Synthesize(context.Context, string) ([]byte, error) { return s, nil }

func TestServicesUnconfigured(t *testing.T) {
	t.Parallel()
	s := generation.NewServices(generation.Clients{})

	_, err := s.Generate(context.Background(), "prompt")
	assert.ErrorIs(t, err, generation.ErrNotConfigured)

	_, err = s.Synthesize(context.Background(), "script")
	assert.ErrorIs(t, err, generation.ErrNotConfigured)
}

func TestServicesSwap(t *testing.T) {
	t.Parallel()
	s := generation.NewServices(generation.Clients{Text: staticText("old")})

	got, err := s.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "old", got)

	s.Swap(generation.Clients{Text: staticText("new"), Voice: staticVoice("mp3")})

	got, err = s.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "new", got)

	audio, err := s.Synthesize(context.Background(), "script")
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3"), audio)
}
