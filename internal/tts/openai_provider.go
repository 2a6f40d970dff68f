package tts

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements Provider for the OpenAI speech API
type OpenAIProvider struct {
	client *openai.Client
	config OpenAIConfig
}

// OpenAIConfig holds OpenAI TTS configuration
type OpenAIConfig struct {
	Model  string  // "tts-1" or "tts-1-hd"
	Speed  float64 // 0.25-4.0, default 1.0
	Format string  // "opus", "mp3", "aac", "flac"
}

func NewOpenAIProvider(apiKey string, config OpenAIConfig) *OpenAIProvider {
	if config.Model == "" {
		// Latency matters more than fidelity mid-fight
		config.Model = "tts-1"
	}
	if config.Speed == 0 {
		config.Speed = 1.0
	}
	if config.Format == "" {
		config.Format = "opus"
	}

	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		config: config,
	}
}

func (p *OpenAIProvider) Speak(ctx context.Context, text string, voice string) error {
	audio, err := p.audio(ctx, text, voice)
	if err != nil {
		return err
	}
	return p.play(ctx, audio)
}

func (p *OpenAIProvider) audio(ctx context.Context, text string, voice string) ([]byte, error) {
	if voice == "" {
		voice = "nova"
	}

	logger.Debugf("Generating speech for %d chars with voice %s", len(text), voice)

	response, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(p.config.Model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		Speed:          p.config.Speed,
		ResponseFormat: openai.SpeechResponseFormat(p.config.Format),
	})
	if err != nil {
		return nil, fmt.Errorf("TTS request failed: %w", err)
	}
	defer response.Close()

	data, err := io.ReadAll(response)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}
	return data, nil
}

// play writes audio to a temp file and tries the usual players in turn
func (p *OpenAIProvider) play(ctx context.Context, audio []byte) error {
	tmpFile, err := os.CreateTemp("", fmt.Sprintf("gamecoach_tts_*.%s", p.config.Format))
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(audio); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write audio data: %w", err)
	}
	tmpFile.Close()

	return playFile(ctx, tmpFile.Name())
}

func (p *OpenAIProvider) Name() string {
	return "OpenAI TTS"
}

func playFile(ctx context.Context, filename string) error {
	players := [][]string{
		{"paplay", filename},
		{"mpv", "--no-video", "--really-quiet", filename},
		{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", filename},
		{"afplay", filename},
	}

	for _, player := range players {
		if _, err := exec.LookPath(player[0]); err != nil {
			continue
		}
		if err := exec.CommandContext(ctx, player[0], player[1:]...).Run(); err != nil {
			logger.Debugf("%s failed: %v", player[0], err)
			continue
		}
		return nil
	}

	return fmt.Errorf("no suitable audio player found (tried: paplay, mpv, ffplay, afplay)")
}
