package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"os/exec"
	"time"

	openairt "github.com/WqyJh/go-openai-realtime"
	"github.com/dooshek/gamecoach/internal/logger"
)

const realtimeInstructions = "You are the voice of a game coach. Read the provided text aloud exactly as written, " +
	"calmly but with urgency when it warns about danger. Do not add commentary."

// RealtimeProvider speaks through the OpenAI Realtime API, streaming PCM16
// straight into the audio player
type RealtimeProvider struct {
	apiKey string
	config RealtimeConfig
}

// RealtimeConfig holds Realtime API TTS configuration
type RealtimeConfig struct {
	Model string
	Voice string
}

func NewRealtimeProvider(apiKey string, config RealtimeConfig) *RealtimeProvider {
	if config.Model == "" {
		config.Model = "gpt-4o-mini-realtime-preview"
	}
	if config.Voice == "" {
		config.Voice = "nova"
	}
	return &RealtimeProvider{apiKey: apiKey, config: config}
}

func (p *RealtimeProvider) Name() string {
	return "OpenAI Realtime API"
}

func (p *RealtimeProvider) Speak(ctx context.Context, text string, voice string) error {
	if voice == "" {
		voice = p.config.Voice
	}

	conn, err := openairt.NewClient(p.apiKey).Connect(ctx, openairt.WithModel(p.config.Model))
	if err != nil {
		return fmt.Errorf("realtime API connection failed: %w", err)
	}
	defer conn.Close()

	err = conn.SendMessage(ctx, &openairt.SessionUpdateEvent{
		Session: openairt.ClientSession{
			Modalities:        []openairt.Modality{openairt.ModalityText},
			Voice:             openairt.Voice(voice),
			OutputAudioFormat: openairt.AudioFormatPcm16,
			Instructions:      realtimeInstructions,
		},
	})
	if err != nil {
		return fmt.Errorf("session update failed: %w", err)
	}

	err = conn.SendMessage(ctx, &openairt.ConversationItemCreateEvent{
		Item: openairt.MessageItem{
			Type: openairt.MessageItemTypeMessage,
			Role: openairt.MessageRoleUser,
			Content: []openairt.MessageContentPart{
				{
					Type: openairt.MessageContentTypeInputText,
					Text: text,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("conversation item creation failed: %w", err)
	}

	// The API requires text alongside audio
	err = conn.SendMessage(ctx, &openairt.ResponseCreateEvent{
		Response: openairt.ResponseCreateParams{
			Modalities:        []openairt.Modality{openairt.ModalityAudio, openairt.ModalityText},
			Voice:             openairt.Voice(voice),
			OutputAudioFormat: openairt.AudioFormatPcm16,
		},
	})
	if err != nil {
		return fmt.Errorf("response creation failed: %w", err)
	}

	return p.stream(ctx, conn)
}

// stream pipes audio deltas into aplay until the response is done
func (p *RealtimeProvider) stream(ctx context.Context, conn *openairt.Conn) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	player := exec.CommandContext(ctx, "aplay", "-q", "-r", "24000", "-f", "S16_LE", "-c", "1", "-")
	stdin, err := player.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	if err := player.Start(); err != nil {
		return fmt.Errorf("failed to start player: %w", err)
	}
	defer func() {
		stdin.Close()
		player.Wait()
	}()

	for {
		event, err := conn.ReadMessage(ctx)
		if err != nil {
			return fmt.Errorf("message read failed: %w", err)
		}

		switch event.ServerEventType() {
		case openairt.ServerEventTypeResponseAudioDelta:
			delta := event.(openairt.ResponseAudioDeltaEvent)
			chunk, err := base64.StdEncoding.DecodeString(delta.Delta)
			if err != nil {
				logger.Error("Failed to decode audio delta", err)
				continue
			}
			if _, err := stdin.Write(chunk); err != nil {
				return fmt.Errorf("playback error: %w", err)
			}

		case openairt.ServerEventTypeResponseDone:
			return nil

		case openairt.ServerEventTypeError:
			e := event.(openairt.ErrorEvent)
			return fmt.Errorf("realtime API error: %s: %s", e.Error.Type, e.Error.Message)
		}
	}
}
