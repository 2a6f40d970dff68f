package notification

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/dooshek/gamecoach/internal/types"
)

const appTitle = "Game Coach"

// Notifier defines the interface for system notifications
type Notifier interface {
	// NotifyAdvice shows advice, replacing the previous advice bubble
	NotifyAdvice(advice types.Advice, urgent bool, expire time.Duration) error
	// ClearAdvice withdraws the advice bubble where the platform allows it
	ClearAdvice() error
	Notify(title, message string) error
	PlayUrgentBeep() error
}

// SilentNotifier is a no-op implementation for headless runs
type SilentNotifier struct{}

func NewSilent() Notifier {
	return &SilentNotifier{}
}

func (s *SilentNotifier) NotifyAdvice(types.Advice, bool, time.Duration) error { return nil }
func (s *SilentNotifier) ClearAdvice() error                                   { return nil }
func (s *SilentNotifier) Notify(title, message string) error                   { return nil }
func (s *SilentNotifier) PlayUrgentBeep() error                                { return nil }

type baseNotifier struct {
	platform platformNotifier
}

type platformNotifier interface {
	send(n message) error
	clear() error
	playUrgentBeep() error
}

// message is one rendered notification
type message struct {
	title  string
	body   string
	urgent bool
	expire time.Duration
	// replace marks bubbles that supersede the previous one
	replace bool
}

// New creates a new platform-specific notification service
func New() Notifier {
	logger.Debug("Initializing notification system")
	var platform platformNotifier
	switch runtime.GOOS {
	case "darwin":
		logger.Debug("Using Darwin (macOS) notifier")
		platform = newDarwinNotifier()
	default:
		logger.Debug("Using Linux notifier")
		platform = newLinuxNotifier()
	}
	return &baseNotifier{platform: platform}
}

func (n *baseNotifier) NotifyAdvice(advice types.Advice, urgent bool, expire time.Duration) error {
	logger.Debugf("Showing advice %s (urgent: %v)", advice.ID, urgent)
	return n.platform.send(formatAdvice(advice, urgent, expire))
}

func (n *baseNotifier) ClearAdvice() error {
	return n.platform.clear()
}

func (n *baseNotifier) Notify(title, body string) error {
	return n.platform.send(message{title: title, body: body})
}

func (n *baseNotifier) PlayUrgentBeep() error {
	return n.platform.playUrgentBeep()
}

// formatAdvice renders the advice bubble title and body
func formatAdvice(advice types.Advice, urgent bool, expire time.Duration) message {
	title := appTitle
	switch {
	case advice.Provider == types.ProviderNameError:
		title += " (analysis failed)"
	case urgent:
		title += " - urgent"
	}

	body := strings.TrimSpace(advice.Advice)
	if advice.Provider != types.ProviderNameError {
		body += fmt.Sprintf("\n%s · %.0f%% · %dms", advice.Provider, advice.Confidence*100, advice.AnalysisTimeMs)
	}

	return message{
		title:   title,
		body:    body,
		urgent:  urgent,
		expire:  expire,
		replace: true,
	}
}
