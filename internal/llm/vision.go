package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/dooshek/gamecoach/internal/types"
	"github.com/sashabaranov/go-openai"
)

const (
	defaultMaxTokens   = 150
	defaultTemperature = 0.3
	userInstruction    = "Analyze this game screenshot and give me one short piece of advice."
)

// VisionClient sends screenshots to an OpenAI-compatible chat completions API
type VisionClient struct {
	name        string
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewVisionClient creates a client for any OpenAI-compatible endpoint; an
// empty baseURL means the OpenAI default
func NewVisionClient(name, apiKey, baseURL string, settings types.ProviderSettings) *VisionClient {
	logger.Debugf("Creating %s vision client", name)

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	model := settings.Model
	if model == "" {
		model = types.DefaultModel(settings.Name)
	}
	maxTokens := settings.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := settings.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}

	return &VisionClient{
		name:        name,
		client:      openai.NewClientWithConfig(config),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

func (c *VisionClient) Name() string {
	return c.name
}

// Analyze sends the prompt as system message and the JPEG frame as an image
// part. Cancelling ctx aborts the HTTP request.
func (c *VisionClient) Analyze(ctx context.Context, image []byte, prompt string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("no image to analyze")
	}
	logger.Debugf("Sending %d byte frame to %s model %s", len(image), c.name, c.model)

	dataURI := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: prompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: userInstruction},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURI,
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("error analyzing frame with %s: %w", c.name, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned from %s", c.name)
	}

	advice := strings.TrimSpace(resp.Choices[0].Message.Content)
	if advice == "" {
		return "", fmt.Errorf("empty advice returned from %s", c.name)
	}
	return advice, nil
}
