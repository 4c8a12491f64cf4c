package credentials

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/reelchain/internal/domain"
	"github.com/phrazzld/reelchain/internal/generation"
	"github.com/phrazzld/reelchain/internal/store"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

var valid = Credentials{
	GeminiAPIKey:     "AIza" + strings.Repeat("x", 35),
	ElevenLabsAPIKey: strings.Repeat("ab", 16),
	VoiceID:          "21a00b3c-4d5e-6f70-8192-a3b4c5d6e7f8",
}

type fakeText struct {
	key      string
	VerifyFn func(ctx context.Context) error
}

func (f *fakeText) Generate(context.Context, string) (string, error) { return "text from " + f.key, nil }

func (f *fakeText) Verify(ctx context.Context) error {
	if f.VerifyFn == nil {
		return nil
	}
	return f.VerifyFn(ctx)
}

type fakeVoice struct {
	key, voice string
	VerifyFn   func(ctx context.Context) error
}

func (f *fakeVoice) Synthesize(context.Context, string) ([]byte, error) {
	return []byte(f.voice), nil
}

func (f *fakeVoice) Verify(ctx context.Context) error {
	if f.VerifyFn == nil {
		return nil
	}
	return f.VerifyFn(ctx)
}

type memCredStore struct {
	mu      sync.Mutex
	sealed  map[string][]byte
	saveErr error
}

func (m *memCredStore) SaveCredentials(_ context.Context, sealed map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.sealed = sealed
	return nil
}

func (m *memCredStore) LoadCredentials(context.Context) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sealed == nil {
		return nil, store.ErrCredentialsNotFound
	}
	return m.sealed, nil
}

type fixture struct {
	svc       *Service
	services  *generation.Services
	store     *memCredStore
	textErr   error
	voiceErr  error
	textCalls int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sealer, err := NewSealer(testKey)
	require.NoError(t, err)

	f := &fixture{services: generation.NewServices(generation.Clients{}), store: &memCredStore{}}
	factory := Factory{
		Text: func(_ context.Context, key string) (TextClient, error) {
			f.textCalls++
			return &fakeText{key: key, VerifyFn: func(context.Context) error { return f.textErr }}, nil
		},
		Voice: func(key, voice string) (VoiceClient, error) {
			return &fakeVoice{key: key, voice: voice, VerifyFn: func(context.Context) error { return f.voiceErr }}, nil
		},
	}
	f.svc, err = NewService(f.services, f.store, sealer, factory, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return f
}

func TestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Credentials)
		field  string
	}{
		{"short gemini key", func(c *Credentials) { c.GeminiAPIKey = "AIza123" }, "gemini_api_key"},
		{"wrong gemini prefix", func(c *Credentials) { c.GeminiAPIKey = "BIza" + strings.Repeat("x", 35) }, "gemini_api_key"},
		{"uppercase elevenlabs key", func(c *Credentials) { c.ElevenLabsAPIKey = strings.Repeat("AB", 16) }, "elevenlabs_api_key"},
		{"voice id not uuid", func(c *Credentials) { c.VoiceID = "rachel" }, "voice_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidFormat)
			assert.True(t, domain.IsKind(err, domain.KindValidation))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := NewService(nil, nil, nil, Factory{}, nil)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConfiguration))
}

func TestConfigureSwapsClientsAndSeals(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	require.NoError(t, f.svc.Configure(context.Background(), valid))

	text, err := f.services.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "text from "+valid.GeminiAPIKey, text)

	require.Len(t, f.store.sealed, 3)
	for _, blob := range f.store.sealed {
		assert.NotContains(t, string(blob), valid.GeminiAPIKey)
		assert.NotContains(t, string(blob), valid.ElevenLabsAPIKey)
	}
}

func TestConfigureRejectsBadFormatWithoutNetwork(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	c := valid
	c.VoiceID = "nope"
	err := f.svc.Configure(context.Background(), c)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	assert.Zero(t, f.textCalls)
	assert.Nil(t, f.store.sealed)
}

func TestConfigureVerificationFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.voiceErr = domain.E(domain.KindValidation, "elevenlabs.Verify", generation.ErrInvalidCredentials)

	err := f.svc.Configure(context.Background(), valid)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindExternalService))
	assert.ErrorIs(t, err, generation.ErrInvalidCredentials)
	assert.Nil(t, f.store.sealed)

	_, err = f.services.Generate(context.Background(), "p")
	assert.ErrorIs(t, err, generation.ErrNotConfigured)
}

func TestConfigureStoreFailureKeepsOldClients(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.store.saveErr = domain.E(domain.KindConnection, "redis", errors.New("connection refused"))

	err := f.svc.Configure(context.Background(), valid)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConnection))
	assert.Nil(t, f.services.Current().Text)
}

func TestRestore(t *testing.T) {
	t.Parallel()

	t.Run("nothing stored", func(t *testing.T) {
		f := newFixture(t)
		ok, err := f.svc.Restore(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("round trip", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.svc.Configure(context.Background(), valid))
		f.services.Swap(generation.Clients{})

		ok, err := f.svc.Restore(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)

		audio, err := f.services.Synthesize(context.Background(), "s")
		require.NoError(t, err)
		assert.Equal(t, valid.VoiceID, string(audio))
	})

	t.Run("wrong key", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.svc.Configure(context.Background(), valid))

		other, err := NewSealer(strings.Repeat("ff", 32))
		require.NoError(t, err)
		f.svc.sealer = other

		_, err = f.svc.Restore(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnseal)
		assert.True(t, domain.IsKind(err, domain.KindConfiguration))
	})
}
