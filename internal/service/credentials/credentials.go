// Package credentials validates, verifies, seals and installs the API
// credentials used by the generation services.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"golang.org/x/sync/errgroup"

	"github.com/phrazzld/reelchain/internal/domain"
	"github.com/phrazzld/reelchain/internal/generation"
	"github.com/phrazzld/reelchain/internal/store"
)

// Field names in the sealed credential hash.
const (
	fieldGemini     = "gemini"
	fieldElevenLabs = "elevenlabs"
	fieldVoiceID    = "voice_id"
)

var (
	geminiKeyPattern     = regexp.MustCompile(`^AIza[0-9A-Za-z_-]{35}$`)
	elevenLabsKeyPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)
	voiceIDPattern       = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// ErrInvalidFormat is returned when a credential does not have the expected
// shape.
var ErrInvalidFormat = errors.New("invalid credential format")

// Credentials are the secrets needed by the external services.
type Credentials struct {
	GeminiAPIKey     string `json:"gemini_api_key"`
	ElevenLabsAPIKey string `json:"elevenlabs_api_key"`
	VoiceID          string `json:"voice_id"`
}

// Validate checks the format of every field without any network call.
func (c Credentials) Validate() error {
	const op = "credentials.Validate"

	switch {
	case !geminiKeyPattern.MatchString(c.GeminiAPIKey):
		return domain.E(domain.KindValidation, op, fmt.Errorf("%w: gemini_api_key", ErrInvalidFormat))
	case !elevenLabsKeyPattern.MatchString(c.ElevenLabsAPIKey):
		return domain.E(domain.KindValidation, op, fmt.Errorf("%w: elevenlabs_api_key", ErrInvalidFormat))
	case !voiceIDPattern.MatchString(c.VoiceID):
		return domain.E(domain.KindValidation, op, fmt.Errorf("%w: voice_id", ErrInvalidFormat))
	}
	return nil
}

// TextClient is a text generator whose key can be checked.
type TextClient interface {
	generation.TextGenerator
	Verify(ctx context.Context) error
}

// VoiceClient is a voice synthesizer whose key and voice can be checked.
type VoiceClient interface {
	generation.VoiceSynthesizer
	Verify(ctx context.Context) error
}

// Factory builds service clients from credentials.
type Factory struct {
	Text  func(ctx context.Context, apiKey string) (TextClient, error)
	Voice func(apiKey, voiceID string) (VoiceClient, error)
}

// Service installs credentials into the live generation services.
type Service struct {
	services *generation.Services
	store    store.CredentialStore
	sealer   *Sealer
	factory  Factory
	logger   *slog.Logger
}

// NewService creates a Service. All arguments are required.
func NewService(
	services *generation.Services,
	credStore store.CredentialStore,
	sealer *Sealer,
	factory Factory,
	logger *slog.Logger,
) (*Service, error) {
	if services == nil || credStore == nil || sealer == nil || factory.Text == nil || factory.Voice == nil {
		return nil, domain.Errorf(domain.KindConfiguration, "credentials.NewService", "missing dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		services: services,
		store:    credStore,
		sealer:   sealer,
		factory:  factory,
		logger:   logger.With("component", "credentials"),
	}, nil
}

// Configure validates c, verifies it against both services, persists it
// sealed and swaps the clients used by new task executions. Nothing is
// persisted or swapped unless every step succeeds.
func (s *Service) Configure(ctx context.Context, c Credentials) error {
	const op = "credentials.Configure"

	if err := c.Validate(); err != nil {
		return err
	}

	clients, err := s.build(ctx, c)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.Go(func() error {
		if err := clients.text.Verify(ctx); err != nil {
			return domain.E(domain.KindExternalService, op, fmt.Errorf("verify gemini key: %w", err))
		}
		return nil
	})
	g.Go(func() error {
		if err := clients.voice.Verify(ctx); err != nil {
			return domain.E(domain.KindExternalService, op, fmt.Errorf("verify elevenlabs credentials: %w", err))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.WarnContext(ctx, "credential verification failed", "error_kind", domain.KindOf(err).String())
		return err
	}

	sealed, err := s.seal(c)
	if err != nil {
		return domain.E(domain.KindConfiguration, op, err)
	}
	if err := s.store.SaveCredentials(ctx, sealed); err != nil {
		return err
	}

	s.services.Swap(generation.Clients{Text: clients.text, Voice: clients.voice})
	s.logger.InfoContext(ctx, "credentials configured")
	return nil
}

// Restore installs previously stored credentials. It reports false, with no
// error, when none are stored.
func (s *Service) Restore(ctx context.Context) (bool, error) {
	const op = "credentials.Restore"

	sealed, err := s.store.LoadCredentials(ctx)
	if errors.Is(err, store.ErrCredentialsNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	c, err := s.open(sealed)
	if err != nil {
		return false, err
	}
	if err := c.Validate(); err != nil {
		return false, domain.E(domain.KindConfiguration, op, err)
	}

	clients, err := s.build(ctx, c)
	if err != nil {
		return false, err
	}
	s.services.Swap(generation.Clients{Text: clients.text, Voice: clients.voice})
	s.logger.InfoContext(ctx, "stored credentials restored")
	return true, nil
}

type clientSet struct {
	text  TextClient
	voice VoiceClient
}

func (s *Service) build(ctx context.Context, c Credentials) (clientSet, error) {
	text, err := s.factory.Text(ctx, c.GeminiAPIKey)
	if err != nil {
		return clientSet{}, err
	}
	voice, err := s.factory.Voice(c.ElevenLabsAPIKey, c.VoiceID)
	if err != nil {
		return clientSet{}, err
	}
	return clientSet{text: text, voice: voice}, nil
}

func (s *Service) seal(c Credentials) (map[string][]byte, error) {
	out := make(map[string][]byte, 3)
	for field, value := range map[string]string{
		fieldGemini:     c.GeminiAPIKey,
		fieldElevenLabs: c.ElevenLabsAPIKey,
		fieldVoiceID:    c.VoiceID,
	} {
		box, err := s.sealer.Seal([]byte(value))
		if err != nil {
			return nil, fmt.Errorf("seal %s: %w", field, err)
		}
		out[field] = box
	}
	return out, nil
}

func (s *Service) open(sealed map[string][]byte) (Credentials, error) {
	values := make(map[string]string, 3)
	for _, field := range []string{fieldGemini, fieldElevenLabs, fieldVoiceID} {
		box, ok := sealed[field]
		if !ok {
			return Credentials{}, domain.Errorf(domain.KindConfiguration, "credentials.open",
				"stored credentials are missing %s", field)
		}
		plain, err := s.sealer.Open(box)
		if err != nil {
			return Credentials{}, err
		}
		values[field] = string(plain)
	}
	return Credentials{
		GeminiAPIKey:     values[fieldGemini],
		ElevenLabsAPIKey: values[fieldElevenLabs],
		VoiceID:          values[fieldVoiceID],
	}, nil
}
