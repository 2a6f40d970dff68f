package tts

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dooshek/gamecoach/internal/analysis"
	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/dooshek/gamecoach/internal/types"
	"golang.org/x/time/rate"
)

// Speaker decides which advice is read aloud and keeps speech from piling
// up: one utterance at a time, at most one per minIntervalMs.
type Speaker struct {
	provider Provider
	settings types.TTSSettings
	limiter  *rate.Limiter

	mu       sync.Mutex
	lastID   string
	speaking atomic.Bool
	wg       sync.WaitGroup
}

func NewSpeaker(provider Provider, settings types.TTSSettings) *Speaker {
	interval := time.Duration(settings.MinIntervalMs) * time.Millisecond
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Speaker{
		provider: provider,
		settings: settings,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// Settings returns the settings the speaker was built with
func (s *Speaker) Settings() types.TTSSettings {
	return s.settings
}

// Announce speaks advice in the background if it qualifies. It reports
// whether speech was started.
func (s *Speaker) Announce(ctx context.Context, advice types.Advice) bool {
	if !s.settings.Enabled || advice.Provider == types.ProviderNameError || advice.Advice == "" {
		return false
	}
	if s.settings.UrgentOnly && !analysis.IsUrgent(advice.Advice, advice.Confidence) {
		return false
	}

	s.mu.Lock()
	if advice.ID == s.lastID {
		s.mu.Unlock()
		return false
	}
	s.lastID = advice.ID
	s.mu.Unlock()

	if !s.speaking.CompareAndSwap(false, true) {
		logger.Debug("Still speaking, skipping advice")
		return false
	}
	if !s.limiter.Allow() {
		s.speaking.Store(false)
		logger.Debug("Speech rate limited, skipping advice")
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.speaking.Store(false)
		if err := s.provider.Speak(ctx, advice.Advice, s.settings.Voice); err != nil {
			logger.Error("Failed to speak advice", err)
		}
	}()
	return true
}

// Wait blocks until any ongoing speech has finished
func (s *Speaker) Wait() {
	s.wg.Wait()
}
