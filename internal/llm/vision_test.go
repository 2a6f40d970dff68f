package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dooshek/gamecoach/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, content string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClientRequiresCredential(t *testing.T) {
	_, err := NewClient(types.ProviderSettings{Name: types.ProviderOpenAI})
	assert.ErrorIs(t, err, ErrMissingCredential)

	_, err = NewClient(types.ProviderSettings{Name: "mistral", APIKeys: types.APIKeys{OpenAI: "k"}})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)

	c, err := NewClient(types.ProviderSettings{Name: types.ProviderGroq, APIKeys: types.APIKeys{Groq: "k"}})
	require.NoError(t, err)
	assert.Equal(t, "groq", c.Name())
}

func TestAnalyzeSendsImageAndPrompt(t *testing.T) {
	var body map[string]any
	srv := completionServer(t, "  Dodge the red circles.  ", &body)

	c := NewVisionClient("openai", "test-key", srv.URL+"/v1", types.ProviderSettings{
		Name: types.ProviderOpenAI, MaxTokens: 99, Temperature: 0.2,
	})
	advice, err := c.Analyze(context.Background(), []byte{0xff, 0xd8, 0xff}, "You are a coach")
	require.NoError(t, err)
	assert.Equal(t, "Dodge the red circles.", advice)

	assert.Equal(t, types.OpenAIModelGPT4oMini, body["model"])
	assert.EqualValues(t, 99, body["max_tokens"])

	messages := body["messages"].([]any)
	require.Len(t, messages, 2)
	system := messages[0].(map[string]any)
	assert.Equal(t, "system", system["role"])
	assert.Equal(t, "You are a coach", system["content"])

	parts := messages[1].(map[string]any)["content"].([]any)
	image := parts[1].(map[string]any)["image_url"].(map[string]any)
	assert.True(t, strings.HasPrefix(image["url"].(string), "data:image/jpeg;base64,"))
}

func TestAnalyzeRejectsEmptyAdvice(t *testing.T) {
	srv := completionServer(t, "   ", nil)
	c := NewVisionClient("openai", "test-key", srv.URL+"/v1", types.ProviderSettings{})

	_, err := c.Analyze(context.Background(), []byte{1}, "prompt")
	assert.Error(t, err)
}

func TestAnalyzeSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	c := NewVisionClient("groq", "test-key", srv.URL+"/v1", types.ProviderSettings{Name: types.ProviderGroq})
	_, err := c.Analyze(context.Background(), []byte{1}, "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestAnalyzeHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewVisionClient("openai", "test-key", srv.URL+"/v1", types.ProviderSettings{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Analyze(ctx, []byte{1}, "prompt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
