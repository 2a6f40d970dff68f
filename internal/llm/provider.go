package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/dooshek/gamecoach/internal/types"
)

var (
	// ErrMissingCredential is returned when the selected provider has no API key
	ErrMissingCredential = errors.New("no API key configured for provider")
	// ErrUnsupportedProvider is returned for provider names we cannot serve
	ErrUnsupportedProvider = errors.New("unsupported provider")
)

const (
	groqBaseURL   = "https://api.groq.com/openai/v1"
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
)

// Client analyzes one screenshot against a prompt
type Client interface {
	Analyze(ctx context.Context, image []byte, prompt string) (string, error)
	Name() string
}

// NewClient creates the remote analysis client for the selected provider.
// Construction fails without a credential.
func NewClient(settings types.ProviderSettings) (Client, error) {
	key := settings.Key()

	var baseURL string
	switch settings.Name {
	case types.ProviderOpenAI:
	case types.ProviderGroq:
		baseURL = groqBaseURL
	case types.ProviderGemini:
		baseURL = geminiBaseURL
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, settings.Name)
	}

	if key == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingCredential, settings.Name)
	}

	return NewVisionClient(string(settings.Name), key, baseURL, settings), nil
}
