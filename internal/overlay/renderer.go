package overlay

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/dooshek/gamecoach/internal/analysis"
	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/dooshek/gamecoach/internal/notification"
	"github.com/dooshek/gamecoach/internal/tts"
	"github.com/dooshek/gamecoach/internal/types"
)

// Announcer reads advice aloud
type Announcer interface {
	Announce(ctx context.Context, advice types.Advice) bool
	Wait()
}

// SpeakerFactory builds the announcer for the current speech settings.
// A nil announcer means speech is off.
type SpeakerFactory func(settings types.TTSSettings, apiKey string) (Announcer, error)

// NewSpeaker is the default SpeakerFactory
func NewSpeaker(settings types.TTSSettings, apiKey string) (Announcer, error) {
	if !settings.Enabled {
		return nil, nil
	}
	provider, err := tts.NewProvider(settings, apiKey)
	if err != nil {
		return nil, err
	}
	return tts.NewSpeaker(provider, settings), nil
}

// Renderer turns mirrored state into advice notifications and speech
type Renderer struct {
	notifier   notification.Notifier
	newSpeaker SpeakerFactory

	mu       sync.Mutex
	primed   bool
	last     *types.Advice
	expire   time.Duration
	speaker  Announcer
	speakers []Announcer
	tts      types.TTSSettings
	ttsKey   string
}

func NewRenderer(notifier notification.Notifier, newSpeaker SpeakerFactory) *Renderer {
	if newSpeaker == nil {
		newSpeaker = NewSpeaker
	}
	return &Renderer{notifier: notifier, newSpeaker: newSpeaker}
}

// Render shows advice that has not been shown yet. Advice already present
// in the first snapshot is shown but not spoken.
func (r *Renderer) Render(ctx context.Context, gs types.GlobalState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.expire = time.Duration(gs.Settings.AutoHideDelayMs) * time.Millisecond
	r.configureSpeech(gs.Settings)

	first := !r.primed
	r.primed = true

	advice := gs.LastAnalysis
	if advice == nil || (r.last != nil && r.last.ID == advice.ID) {
		return
	}
	a := *advice
	r.last = &a

	urgent := a.Provider != types.ProviderNameError && analysis.IsUrgent(a.Advice, a.Confidence)
	r.show(a, urgent)

	if first {
		return
	}
	spoken := r.speaker != nil && r.speaker.Announce(ctx, a)
	if urgent && !spoken {
		if err := r.notifier.PlayUrgentBeep(); err != nil {
			logger.Debugf("Urgent beep failed: %v", err)
		}
	}
}

// Raise shows the current advice again
func (r *Renderer) Raise() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return
	}
	a := *r.last
	r.show(a, a.Provider != types.ProviderNameError && analysis.IsUrgent(a.Advice, a.Confidence))
}

func (r *Renderer) show(a types.Advice, urgent bool) {
	if err := r.notifier.NotifyAdvice(a, urgent, r.expire); err != nil {
		logger.Warnf("Failed to show advice: %v", err)
	}
}

func (r *Renderer) configureSpeech(settings types.Settings) {
	key := settings.Provider.APIKeys.OpenAI
	if r.primed && reflect.DeepEqual(settings.TTS, r.tts) && key == r.ttsKey {
		return
	}
	r.tts, r.ttsKey = settings.TTS, key

	speaker, err := r.newSpeaker(settings.TTS, key)
	if err != nil {
		logger.Warnf("Speech disabled: %v", err)
		speaker = nil
	}
	r.speaker = speaker
	if speaker != nil {
		r.speakers = append(r.speakers, speaker)
	}
}

// Close clears the advice bubble and waits for speech in progress
func (r *Renderer) Close() {
	r.mu.Lock()
	speakers := r.speakers
	r.speakers = nil
	r.mu.Unlock()

	if err := r.notifier.ClearAdvice(); err != nil {
		logger.Debugf("Failed to clear advice: %v", err)
	}
	for _, s := range speakers {
		s.Wait()
	}
}
