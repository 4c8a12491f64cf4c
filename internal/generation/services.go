package generation

import (
	"context"
	"sync/atomic"

	"github.com/phrazzld/reelchain/internal/domain"
)

// Clients is one consistent set of external service clients.
type Clients struct {
	Text  TextGenerator
	Voice VoiceSynthesizer
}

// Services holds the live clients. Reconfiguration swaps the whole set at
// once, so a task sees either the old or the new clients, never a mix.
type Services struct {
	clients atomic.Pointer[Clients]
}

// NewServices creates a holder with the given initial clients, which may be
// zero.
func NewServices(initial Clients) *Services {
	s := &Services{}
	s.Swap(initial)
	return s
}

// Swap replaces the current clients.
func (s *Services) Swap(c Clients) {
	s.clients.Store(&c)
}

// Current returns the current clients.
func (s *Services) Current() Clients {
	if c := s.clients.Load(); c != nil {
		return *c
	}
	return Clients{}
}

// Generate implements TextGenerator against the current text client.
func (s *Services) Generate(ctx context.Context, prompt string) (string, error) {
	text := s.Current().Text
	if text == nil {
		return "", domain.E(domain.KindConfiguration, "generation.Generate", ErrNotConfigured)
	}
	return text.Generate(ctx, prompt)
}

// Synthesize implements VoiceSynthesizer against the current voice client.
func (s *Services) Synthesize(ctx context.Context, script string) ([]byte, error) {
	voice := s.Current().Voice
	if voice == nil {
		return nil, domain.E(domain.KindConfiguration, "generation.Synthesize", ErrNotConfigured)
	}
	return voice.Synthesize(ctx, script)
}
