package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/dooshek/gamecoach/internal/types"
)

// ErrMissingKey is returned when speech is enabled without an OpenAI key
var ErrMissingKey = errors.New("OpenAI API key is required for speech - configure it using the wizard")

// Provider defines the interface for text-to-speech providers
type Provider interface {
	// Speak converts text to speech and plays it, returning once playback ends
	Speak(ctx context.Context, text string, voice string) error

	// Name returns the name of the provider
	Name() string
}

// NewProvider creates the provider selected in settings
func NewProvider(settings types.TTSSettings, apiKey string) (Provider, error) {
	if apiKey == "" {
		return nil, ErrMissingKey
	}

	switch settings.Provider {
	case "", "openai":
		return NewOpenAIProvider(apiKey, OpenAIConfig{
			Model: settings.Model,
			Speed: settings.Speed,
		}), nil
	case "realtime":
		return NewRealtimeProvider(apiKey, RealtimeConfig{
			Voice: settings.Voice,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported TTS provider: %s (supported: openai, realtime)", settings.Provider)
	}
}
