package detect

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/dooshek/gamecoach/internal/types"
	"github.com/dooshek/gamecoach/internal/windowdetect"
)

// WindowLister enumerates visible top-level windows
type WindowLister interface {
	ListWindows(ctx context.Context) ([]windowdetect.WindowInfo, error)
}

// StateClient is the Sync Client surface the detector needs
type StateClient interface {
	State() types.GlobalState
	SetGameState(ctx context.Context, patch types.GameStatePatch) error
}

// Result describes one detection pass
type Result struct {
	Running    bool                     `json:"running"`
	Window     *windowdetect.WindowInfo `json:"window,omitempty"`
	Identifier string                   `json:"identifier,omitempty"`
	Confidence float64                  `json:"confidence"`
	Method     string                   `json:"method"`
}

const (
	methodWindowList = "window-list"
	methodError      = "error"
)

// Match looks for the first window whose title or class contains one of the
// identifiers, case-insensitively
func Match(game types.GameSettings, windows []windowdetect.WindowInfo) Result {
	for i := range windows {
		w := windows[i]
		for _, candidate := range []string{w.Title, w.AppName} {
			if id := matchIdentifier(game.Identifiers, candidate); id != "" {
				return Result{
					Running:    true,
					Window:     &w,
					Identifier: id,
					Confidence: Confidence(game.Name, candidate),
					Method:     methodWindowList,
				}
			}
		}
	}
	return Result{Method: methodWindowList}
}

func matchIdentifier(identifiers []string, name string) string {
	lower := strings.ToLower(name)
	for _, id := range identifiers {
		if id != "" && strings.Contains(lower, strings.ToLower(id)) {
			return id
		}
	}
	return ""
}

// Confidence rates how closely a window name matches the game name
func Confidence(gameName, windowName string) float64 {
	name := strings.ToLower(strings.TrimSpace(windowName))
	game := strings.ToLower(strings.TrimSpace(gameName))
	switch {
	case game == "":
		return 0.3
	case name == game:
		return 1.0
	case strings.Contains(name, game):
		return 0.9
	case len(game) > 5 && strings.Contains(name, game[:5]):
		return 0.6
	default:
		return 0.3
	}
}

// Detector polls the window list and publishes gameState.detected when it
// changes
type Detector struct {
	windows WindowLister
	client  StateClient

	mu   sync.Mutex
	last Result
}

func New(windows WindowLister, client StateClient) *Detector {
	return &Detector{windows: windows, client: client}
}

// Last returns the most recent detection result
func (d *Detector) Last() Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Run detects immediately and then every game.detectIntervalMs until ctx
// is done
func (d *Detector) Run(ctx context.Context) error {
	interval := d.interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.Detect(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.Detect(ctx)
			if next := d.interval(); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

func (d *Detector) interval() time.Duration {
	return time.Duration(d.client.State().Settings.Game.DetectIntervalMs) * time.Millisecond
}

// Detect runs one pass and writes the detected flag if it differs from the
// mirror. Errors count as the game not running.
func (d *Detector) Detect(ctx context.Context) Result {
	st := d.client.State()

	var result Result
	windows, err := d.windows.ListWindows(ctx)
	if err != nil {
		logger.Warnf("Game detection error: %v", err)
		result = Result{Method: methodError}
	} else {
		result = Match(st.Settings.Game, windows)
	}

	d.mu.Lock()
	prev := d.last
	d.last = result
	d.mu.Unlock()

	if result.Running != prev.Running {
		if result.Running {
			logger.Infof("Game detected: %q (confidence %.1f)", result.Window.Title, result.Confidence)
		} else {
			logger.Info("Game no longer detected")
		}
	}

	if result.Running != st.GameState.Detected {
		detected := result.Running
		if err := d.client.SetGameState(ctx, types.GameStatePatch{Detected: &detected}); err != nil {
			logger.Warnf("Failed to publish game detection: %v", err)
		}
	}
	return result
}
