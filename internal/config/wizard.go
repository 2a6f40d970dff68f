package config

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/MarinX/keylogger"
	"github.com/dooshek/gamecoach/internal/keyboard"
	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/dooshek/gamecoach/internal/types"
	"github.com/fatih/color"
)

type KeyPress struct {
	Key   string
	Ctrl  bool
	Shift bool
	Alt   bool
	Super bool
}

// Implement types.KeyCombo for KeyPress
func (kp KeyPress) HasCtrl() bool  { return kp.Ctrl }
func (kp KeyPress) HasShift() bool { return kp.Shift }
func (kp KeyPress) HasAlt() bool   { return kp.Alt }
func (kp KeyPress) HasSuper() bool { return kp.Super }
func (kp KeyPress) GetKey() string { return kp.Key }

// SettingsStore is the persistence the wizard reads and writes
type SettingsStore interface {
	Load(ctx context.Context) (types.SettingsPatch, error)
	Save(ctx context.Context, settings types.Settings) error
}

// SourceLister enumerates the capture sources offered by the wizard
type SourceLister interface {
	ListSources(ctx context.Context) ([]types.Source, error)
}

// RunWizard walks the user through provider, credential, game, capture
// source and hotkey setup. sources may be nil to skip source selection.
func RunWizard(ctx context.Context, store SettingsStore, sources SourceLister) error {
	w := &wizard{
		in:      bufio.NewReader(os.Stdin),
		out:     os.Stdout,
		store:   store,
		sources: sources,
		capture: captureKeys,
	}
	return w.run(ctx)
}

type wizard struct {
	in      *bufio.Reader
	out     io.Writer
	store   SettingsStore
	sources SourceLister
	capture func() (KeyPress, error)
}

func (w *wizard) run(ctx context.Context) error {
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	patch, err := w.store.Load(ctx)
	if err != nil {
		logger.Warnf("Failed to load existing settings: %v", err)
		patch = types.SettingsPatch{}
	}
	settings, err := types.MergeSettings(types.DefaultSettings(), patch)
	if err != nil {
		logger.Warnf("Existing settings are invalid, starting from defaults: %v", err)
		settings = types.DefaultSettings()
	}

	bold.Fprintln(w.out, "\n🎮  Welcome to the GameCoach Configuration Wizard!")
	fmt.Fprintln(w.out, "\nThis wizard will set up your AI provider, game, screen and analysis shortcut.")

	cyan.Fprintln(w.out, "\nWhich AI provider should analyze your screen?")
	fmt.Fprintln(w.out, "  1) OpenAI\n  2) Gemini\n  3) Groq")
	choice, err := w.ask(fmt.Sprintf("Provider [%s]: ", settings.Provider.Name))
	if err != nil {
		return err
	}
	if provider, ok := parseProvider(choice); ok {
		if provider != settings.Provider.Name {
			settings.Provider.Name = provider
			settings.Provider.Model = types.DefaultModel(provider)
		}
	} else if choice != "" {
		yellow.Fprintf(w.out, "Unknown provider %q, keeping %s\n", choice, settings.Provider.Name)
	}

	key, err := w.ask(fmt.Sprintf("API key for %s (leave empty to keep current): ", settings.Provider.Name))
	if err != nil {
		return err
	}
	if key != "" {
		switch settings.Provider.Name {
		case types.ProviderGemini:
			settings.Provider.APIKeys.Gemini = key
		case types.ProviderGroq:
			settings.Provider.APIKeys.Groq = key
		default:
			settings.Provider.APIKeys.OpenAI = key
		}
	}

	game, err := w.ask(fmt.Sprintf("Game window title [%s]: ", settings.Game.Name))
	if err != nil {
		return err
	}
	if game != "" && game != settings.Game.Name {
		settings.Game.Name = game
		settings.Game.Identifiers = []string{game}
	}

	if err := w.chooseSource(ctx, &settings); err != nil {
		return err
	}

	for {
		cyan.Fprintln(w.out, "\nPress the key combination that starts/stops analysis (Ctrl, Alt, Shift, Super + key)...")
		fmt.Fprintln(w.out, "(Press Ctrl+C to cancel)")

		keyPress, err := w.capture()
		if err != nil {
			yellow.Fprintf(w.out, "Could not read the keyboard (%v), keeping ", err)
			printKeyCombination(w.out, settings.Hotkey, false)
			fmt.Fprintln(w.out)
			break
		}
		if keyPress.Key == "" {
			return fmt.Errorf("no valid key was pressed")
		}

		yellow.Fprint(w.out, "\nSelected shortcut is: ")
		printKeyCombination(w.out, keyPress, false)
		fmt.Fprintln(w.out)

		response, err := w.ask("\nDo you want to use this shortcut? [Y/n]: ")
		if err != nil {
			return err
		}
		response = strings.ToLower(response)
		if response == "" || response == "y" || response == "yes" {
			settings.Hotkey = types.KeyBinding{
				Key:   keyPress.Key,
				Ctrl:  keyPress.Ctrl,
				Shift: keyPress.Shift,
				Alt:   keyPress.Alt,
				Super: keyPress.Super,
			}
			break
		}
		fmt.Fprintln(w.out, "\nOK, let's try again.")
	}

	settings.Setup = types.SetupProgress{Completed: true, Step: 5}
	if err := w.store.Save(ctx, settings); err != nil {
		logger.Error("Failed to save settings", err)
		return err
	}

	green.Fprintln(w.out, "\n✅ Configuration saved successfully!")
	fmt.Fprint(w.out, "Your shortcut is: ")
	printKeyCombination(w.out, settings.Hotkey, false)
	fmt.Fprintln(w.out, "\nRun `gamecoach run` and use this shortcut to start/stop coaching.")
	return nil
}

// chooseSource offers the capture sources by number
func (w *wizard) chooseSource(ctx context.Context, settings *types.Settings) error {
	if w.sources == nil {
		return nil
	}
	sources, err := w.sources.ListSources(ctx)
	if err != nil || len(sources) == 0 {
		color.New(color.FgYellow).Fprintln(w.out, "\nNo capture sources found, select one later with `gamecoach sources`.")
		return nil
	}

	color.New(color.FgCyan).Fprintln(w.out, "\nWhich screen shows the game?")
	current := 0
	for i, src := range sources {
		fmt.Fprintf(w.out, "  %d) %s\n", i+1, src.Name)
		if src.ID == settings.CaptureSourceID {
			current = i + 1
		}
	}
	if current == 0 {
		current = 1
	}

	choice, err := w.ask(fmt.Sprintf("Source [%d]: ", current))
	if err != nil {
		return err
	}
	n := current
	if choice != "" {
		if v, err := strconv.Atoi(choice); err == nil && v >= 1 && v <= len(sources) {
			n = v
		} else {
			color.New(color.FgYellow).Fprintf(w.out, "Unknown source %q, using %d\n", choice, current)
		}
	}
	settings.CaptureSourceID = sources[n-1].ID
	return nil
}

// ask prints prompt and returns the trimmed answer without control characters
func (w *wizard) ask(prompt string) (string, error) {
	fmt.Fprint(w.out, prompt)
	response, err := w.in.ReadString('\n')
	if err != nil && !(err == io.EOF && response != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	response = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, response)
	return strings.TrimSpace(response), nil
}

func parseProvider(choice string) (types.LLMProvider, bool) {
	switch strings.ToLower(choice) {
	case "1", "openai":
		return types.ProviderOpenAI, true
	case "2", "gemini":
		return types.ProviderGemini, true
	case "3", "groq":
		return types.ProviderGroq, true
	}
	return "", false
}

// printKeyCombination prints a key combination in a standardized format.
// If clearLine is true, it will clear the current line before printing.
func printKeyCombination(out io.Writer, combo types.KeyCombo, clearLine bool) {
	if clearLine {
		fmt.Fprint(out, "\033[2K\r")
		fmt.Fprint(out, "Shortcut: ")
	}
	fmt.Fprint(out, keyboard.FormatCombo(combo))
}

func captureKeys() (KeyPress, error) {
	keyboards := keylogger.FindAllKeyboardDevices()
	if len(keyboards) == 0 {
		return KeyPress{}, fmt.Errorf("no keyboard devices found")
	}

	kbd, err := keylogger.New(keyboards[0])
	if err != nil {
		return KeyPress{}, fmt.Errorf("failed to initialize keylogger: %w", err)
	}
	defer kbd.Close()

	var keyPress KeyPress
	for e := range kbd.Read() {
		if e.Type != keylogger.EvKey {
			continue
		}
		code := uint16(e.Code)
		pressed := e.KeyPress()
		if !pressed && !e.KeyRelease() {
			continue
		}

		switch code {
		case keyboard.LeftControl, keyboard.RightControl:
			keyPress.Ctrl = pressed
		case keyboard.LeftShift, keyboard.RightShift:
			keyPress.Shift = pressed
		case keyboard.LeftAlt, keyboard.RightAlt:
			keyPress.Alt = pressed
		case keyboard.Super:
			keyPress.Super = pressed
		default:
			if key, ok := keyboard.KeyMap[code]; ok && pressed {
				keyPress.Key = key
				return keyPress, nil
			}
			continue
		}
		printKeyCombination(os.Stdout, keyPress, true)
	}
	return keyPress, fmt.Errorf("keyboard device closed")
}
