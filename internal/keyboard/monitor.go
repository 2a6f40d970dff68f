package keyboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarinX/keylogger"
	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/dooshek/gamecoach/internal/types"
)

const debounceThreshold = 200 * time.Millisecond

// ModifierState tracks the state of modifier keys (Ctrl, Shift, Alt, Super)
type ModifierState struct {
	Ctrl  bool
	Shift bool
	Alt   bool
	Super bool
}

// Tracker turns raw key events into combo activations
type Tracker struct {
	mu            sync.Mutex
	keyConfig     types.KeyBinding
	targetKeyCode uint16
	modifierState ModifierState
	lastFired     time.Time
	now           func() time.Time
}

func NewTracker(keyConfig types.KeyBinding) *Tracker {
	return &Tracker{
		keyConfig:     keyConfig,
		targetKeyCode: KeyCodes[strings.ToLower(keyConfig.Key)],
		now:           time.Now,
	}
}

// SetBinding swaps the combination, used when settings change at runtime
func (t *Tracker) SetBinding(keyConfig types.KeyBinding) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.keyConfig = keyConfig
	t.targetKeyCode = KeyCodes[strings.ToLower(keyConfig.Key)]
}

// Binding returns the active combination
func (t *Tracker) Binding() types.KeyBinding {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.keyConfig
}

// Feed records one key event and reports whether the combination fired
func (t *Tracker) Feed(code uint16, pressed bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch code {
	case LeftControl, RightControl:
		t.modifierState.Ctrl = pressed
	case LeftShift, RightShift:
		t.modifierState.Shift = pressed
	case LeftAlt, RightAlt:
		t.modifierState.Alt = pressed
	case Super:
		t.modifierState.Super = pressed
	default:
		if !pressed || t.targetKeyCode == 0 || code != t.targetKeyCode || !t.checkModifiers() {
			return false
		}
		now := t.now()
		if !t.lastFired.IsZero() && now.Sub(t.lastFired) <= debounceThreshold {
			logger.Debugf("Ignoring hotkey - %d ms after previous", now.Sub(t.lastFired).Milliseconds())
			return false
		}
		t.lastFired = now
		return true
	}
	return false
}

// checkModifiers verifies if current modifier state matches the configuration
func (t *Tracker) checkModifiers() bool {
	return t.modifierState.Ctrl == t.keyConfig.Ctrl &&
		t.modifierState.Shift == t.keyConfig.Shift &&
		t.modifierState.Alt == t.keyConfig.Alt &&
		t.modifierState.Super == t.keyConfig.Super
}

// Monitor reads the first evdev keyboard and calls onCombo each time the
// configured combination is pressed
type Monitor struct {
	tracker  *Tracker
	onCombo  func()
	keyboard *keylogger.KeyLogger
}

func NewMonitor(keyConfig types.KeyBinding, onCombo func()) *Monitor {
	return &Monitor{
		tracker: NewTracker(keyConfig),
		onCombo: onCombo,
	}
}

// Tracker exposes the combo state so callers can rebind it
func (m *Monitor) Tracker() *Tracker {
	return m.tracker
}

func (m *Monitor) Start(ctx context.Context) error {
	keyboards := keylogger.FindAllKeyboardDevices()
	if len(keyboards) == 0 {
		return fmt.Errorf("no keyboard devices found")
	}

	kbd, err := keylogger.New(keyboards[0])
	if err != nil {
		if strings.Contains(err.Error(), "permission denied") {
			fmt.Printf("Cannot access keyboard device.\n" +
				"Solution: \n" +
				"1. Add yourself to the input group: sudo usermod -aG input $USER \n" +
				"2. Log out and log back in (or restart your system) \n" +
				"3. Run the program again \n\n")
		}
		return fmt.Errorf("error initializing keylogger: %w", err)
	}
	m.keyboard = kbd

	go func() {
		<-ctx.Done()
		kbd.Close()
	}()

	logger.Infof("Hotkey %s armed", FormatCombo(m.tracker.Binding()))
	for e := range kbd.Read() {
		if e.Type != keylogger.EvKey {
			continue
		}
		if !e.KeyPress() && !e.KeyRelease() {
			continue
		}
		if m.tracker.Feed(uint16(e.Code), e.KeyPress()) {
			logger.Debug("Hotkey pressed")
			m.onCombo()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return ctx.Err()
}

func (m *Monitor) Stop() {
	if m.keyboard != nil {
		m.keyboard.Close()
	}
}
