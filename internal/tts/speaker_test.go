package tts

import (
	"context"
	"sync"
	"testing"

	"github.com/dooshek/gamecoach/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu      sync.Mutex
	spoken  []string
	voices  []string
	release chan struct{}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Speak(_ context.Context, text, voice string) error {
	if p.release != nil {
		<-p.release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spoken = append(p.spoken, text)
	p.voices = append(p.voices, voice)
	return nil
}

func (p *fakeProvider) Spoken() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.spoken...)
}

func urgent(id string) types.Advice {
	return types.Advice{ID: id, Advice: "Boss incoming, dodge now!", Confidence: 0.9, Provider: "openai"}
}

func settings() types.TTSSettings {
	s := types.DefaultSettings().TTS
	s.Enabled = true
	return s
}

func TestAnnounceSpeaksUrgentAdviceOnce(t *testing.T) {
	p := &fakeProvider{}
	s := NewSpeaker(p, settings())

	require.True(t, s.Announce(context.Background(), urgent("a")))
	s.Wait()
	assert.Equal(t, []string{"Boss incoming, dodge now!"}, p.Spoken())
	assert.Equal(t, "nova", p.voices[0])

	// same advice replayed by a later broadcast
	assert.False(t, s.Announce(context.Background(), urgent("a")))
}

func TestAnnounceRateLimited(t *testing.T) {
	p := &fakeProvider{}
	s := NewSpeaker(p, settings())

	require.True(t, s.Announce(context.Background(), urgent("a")))
	s.Wait()
	assert.False(t, s.Announce(context.Background(), urgent("b")))
}

func TestAnnounceSkipsWhileSpeaking(t *testing.T) {
	p := &fakeProvider{release: make(chan struct{})}
	cfg := settings()
	cfg.MinIntervalMs = 0
	s := NewSpeaker(p, cfg)

	require.True(t, s.Announce(context.Background(), urgent("a")))
	assert.False(t, s.Announce(context.Background(), urgent("b")))
	close(p.release)
	s.Wait()

	assert.True(t, s.Announce(context.Background(), urgent("c")))
	s.Wait()
	assert.Len(t, p.Spoken(), 2)
}

func TestAnnounceFilters(t *testing.T) {
	p := &fakeProvider{}
	cfg := settings()
	s := NewSpeaker(p, cfg)

	calm := types.Advice{ID: "calm", Advice: "Open the chest on the left", Confidence: 0.9, Provider: "openai"}
	assert.False(t, s.Announce(context.Background(), calm))

	degraded := urgent("err")
	degraded.Provider = types.ProviderNameError
	assert.False(t, s.Announce(context.Background(), degraded))

	cfg.Enabled = false
	assert.False(t, NewSpeaker(p, cfg).Announce(context.Background(), urgent("x")))

	cfg.Enabled = true
	cfg.UrgentOnly = false
	assert.True(t, NewSpeaker(p, cfg).Announce(context.Background(), calm))
}

func TestNewProvider(t *testing.T) {
	_, err := NewProvider(settings(), "")
	assert.ErrorIs(t, err, ErrMissingKey)

	p, err := NewProvider(settings(), "sk-test")
	require.NoError(t, err)
	assert.Equal(t, "OpenAI TTS", p.Name())

	rt := settings()
	rt.Provider = "realtime"
	p, err = NewProvider(rt, "sk-test")
	require.NoError(t, err)
	assert.Equal(t, "OpenAI Realtime API", p.Name())

	rt.Provider = "elevenlabs"
	_, err = NewProvider(rt, "sk-test")
	assert.Error(t, err)
}
