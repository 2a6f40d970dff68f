package types

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// SettingsPatch is a partial settings document keyed by field name.
// Nested objects are merged key by key, every other value replaces the
// current one wholesale.
type SettingsPatch map[string]any

type Settings struct {
	Provider          ProviderSettings     `yaml:"provider" json:"provider" mapstructure:"provider"`
	CaptureSourceID   string               `yaml:"captureSourceId" json:"captureSourceId" mapstructure:"captureSourceId"`
	Capture           CaptureSettings      `yaml:"capture" json:"capture" mapstructure:"capture"`
	OverlayEnabled    bool                 `yaml:"overlayEnabled" json:"overlayEnabled" mapstructure:"overlayEnabled"`
	Overlay           OverlaySettings      `yaml:"overlay" json:"overlay" mapstructure:"overlay"`
	TTS               TTSSettings          `yaml:"tts" json:"tts" mapstructure:"tts"`
	Instructions      InstructionsSettings `yaml:"instructions" json:"instructions" mapstructure:"instructions"`
	AdviceFrequencyMs int                  `yaml:"adviceFrequencyMs" json:"adviceFrequencyMs" mapstructure:"adviceFrequencyMs"`
	AutoHideDelayMs   int                  `yaml:"autoHideDelayMs" json:"autoHideDelayMs" mapstructure:"autoHideDelayMs"`
	MaxAdviceHistory  int                  `yaml:"maxAdviceHistory" json:"maxAdviceHistory" mapstructure:"maxAdviceHistory"`
	Setup             SetupProgress        `yaml:"setup" json:"setup" mapstructure:"setup"`
	Hotkey            KeyBinding           `yaml:"hotkey" json:"hotkey" mapstructure:"hotkey"`
	Game              GameSettings         `yaml:"game" json:"game" mapstructure:"game"`
}

type ProviderSettings struct {
	Name        LLMProvider `yaml:"name" json:"name" mapstructure:"name"`
	Model       string      `yaml:"model" json:"model" mapstructure:"model"`
	APIKeys     APIKeys     `yaml:"apiKeys" json:"apiKeys" mapstructure:"apiKeys"`
	MaxRetries  int         `yaml:"maxRetries" json:"maxRetries" mapstructure:"maxRetries"`
	TimeoutMs   int         `yaml:"timeoutMs" json:"timeoutMs" mapstructure:"timeoutMs"`
	MaxTokens   int         `yaml:"maxTokens" json:"maxTokens" mapstructure:"maxTokens"`
	Temperature float32     `yaml:"temperature" json:"temperature" mapstructure:"temperature"`
}

type APIKeys struct {
	OpenAI string `yaml:"openai" json:"openai" mapstructure:"openai"`
	Gemini string `yaml:"gemini" json:"gemini" mapstructure:"gemini"`
	Groq   string `yaml:"groq" json:"groq" mapstructure:"groq"`
}

// Key returns the credential configured for the selected provider
func (p ProviderSettings) Key() string {
	switch p.Name {
	case ProviderGemini:
		return p.APIKeys.Gemini
	case ProviderGroq:
		return p.APIKeys.Groq
	default:
		return p.APIKeys.OpenAI
	}
}

type CaptureSettings struct {
	Width       int `yaml:"width" json:"width" mapstructure:"width"`
	Height      int `yaml:"height" json:"height" mapstructure:"height"`
	JPEGQuality int `yaml:"jpegQuality" json:"jpegQuality" mapstructure:"jpegQuality"`
}

type OverlayTheme string

const (
	ThemeDark    OverlayTheme = "dark"
	ThemeLight   OverlayTheme = "light"
	ThemeMinimal OverlayTheme = "minimal"
)

type OverlaySize string

const (
	SizeSmall  OverlaySize = "small"
	SizeMedium OverlaySize = "medium"
	SizeLarge  OverlaySize = "large"
)

type OverlaySettings struct {
	Theme    OverlayTheme `yaml:"theme" json:"theme" mapstructure:"theme"`
	Size     OverlaySize  `yaml:"size" json:"size" mapstructure:"size"`
	Opacity  float64      `yaml:"opacity" json:"opacity" mapstructure:"opacity"`
	Width    int          `yaml:"width" json:"width" mapstructure:"width"`
	Height   int          `yaml:"height" json:"height" mapstructure:"height"`
	Position Position     `yaml:"position" json:"position" mapstructure:"position"`
}

// Position is the overlay center as percentages of the usable display area
type Position struct {
	X float64 `yaml:"x" json:"x" mapstructure:"x"`
	Y float64 `yaml:"y" json:"y" mapstructure:"y"`
}

// Dimensions scales the base overlay size by the size preset
func (o OverlaySettings) Dimensions() Size {
	scale := 1.0
	switch o.Size {
	case SizeSmall:
		scale = 0.8
	case SizeLarge:
		scale = 1.3
	}
	return Size{
		Width:  int(float64(o.Width) * scale),
		Height: int(float64(o.Height) * scale),
	}
}

type TTSSettings struct {
	Enabled       bool    `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Provider      string  `yaml:"provider" json:"provider" mapstructure:"provider"` // "openai", "realtime"
	Voice         string  `yaml:"voice" json:"voice" mapstructure:"voice"`
	Model         string  `yaml:"model" json:"model" mapstructure:"model"`
	Speed         float64 `yaml:"speed" json:"speed" mapstructure:"speed"`
	UrgentOnly    bool    `yaml:"urgentOnly" json:"urgentOnly" mapstructure:"urgentOnly"`
	MinIntervalMs int     `yaml:"minIntervalMs" json:"minIntervalMs" mapstructure:"minIntervalMs"`
}

type InstructionsSettings struct {
	SystemInstruction string                `yaml:"systemInstruction" json:"systemInstruction" mapstructure:"systemInstruction"`
	ActiveTemplate    string                `yaml:"activeTemplate" json:"activeTemplate" mapstructure:"activeTemplate"`
	Variables         map[string]string     `yaml:"variables" json:"variables" mapstructure:"variables"`
	Custom            []InstructionTemplate `yaml:"custom" json:"custom" mapstructure:"custom"`
}

type TemplateCategory string

const (
	CategoryCombat      TemplateCategory = "combat"
	CategoryExploration TemplateCategory = "exploration"
	CategorySpeedrun    TemplateCategory = "speedrun"
	CategoryGeneral     TemplateCategory = "general"
)

type InstructionTemplate struct {
	ID           string            `yaml:"id" json:"id" mapstructure:"id"`
	Name         string            `yaml:"name" json:"name" mapstructure:"name"`
	Description  string            `yaml:"description" json:"description" mapstructure:"description"`
	SystemPrompt string            `yaml:"systemPrompt" json:"systemPrompt" mapstructure:"systemPrompt"`
	Variables    map[string]string `yaml:"variables" json:"variables" mapstructure:"variables"`
	Category     TemplateCategory  `yaml:"category" json:"category" mapstructure:"category"`
	IsBuiltIn    bool              `yaml:"isBuiltIn" json:"isBuiltIn" mapstructure:"isBuiltIn"`
}

type SetupProgress struct {
	Completed bool `yaml:"completed" json:"completed" mapstructure:"completed"`
	Step      int  `yaml:"step" json:"step" mapstructure:"step"`
}

type GameSettings struct {
	Name             string   `yaml:"name" json:"name" mapstructure:"name"`
	Identifiers      []string `yaml:"identifiers" json:"identifiers" mapstructure:"identifiers"`
	DetectIntervalMs int      `yaml:"detectIntervalMs" json:"detectIntervalMs" mapstructure:"detectIntervalMs"`
}

const DefaultSystemInstruction = "You are an expert gaming coach for Ravenswatch. Provide concise, actionable advice based on what you see in the game."

// DefaultSettings returns a fully populated settings value
func DefaultSettings() Settings {
	return Settings{
		Provider: ProviderSettings{
			Name:        ProviderOpenAI,
			Model:       OpenAIModelGPT4oMini,
			MaxRetries:  3,
			TimeoutMs:   30000,
			MaxTokens:   150,
			Temperature: 0.3,
		},
		Capture: CaptureSettings{
			Width:       1280,
			Height:      720,
			JPEGQuality: 80,
		},
		OverlayEnabled: true,
		Overlay: OverlaySettings{
			Theme:    ThemeDark,
			Size:     SizeMedium,
			Opacity:  0.9,
			Width:    300,
			Height:   150,
			Position: Position{X: 50, Y: 10},
		},
		TTS: TTSSettings{
			Provider:      "openai",
			Voice:         "nova",
			Model:         "tts-1",
			Speed:         1.0,
			UrgentOnly:    true,
			MinIntervalMs: 8000,
		},
		Instructions: InstructionsSettings{
			SystemInstruction: DefaultSystemInstruction,
			Variables:         map[string]string{},
			Custom:            []InstructionTemplate{},
		},
		AdviceFrequencyMs: 5000,
		AutoHideDelayMs:   5000,
		MaxAdviceHistory:  10,
		Hotkey: KeyBinding{
			Key:   "g",
			Ctrl:  true,
			Shift: true,
		},
		Game: GameSettings{
			Name: "Ravenswatch",
			Identifiers: []string{
				"Ravenswatch",
				"ravenswatch.exe",
				"RavenswatchGame",
				"Passtech Games",
				"Steam - Ravenswatch",
				"Epic Games - Ravenswatch",
				"GOG - Ravenswatch",
			},
			DetectIntervalMs: 5000,
		},
	}
}

// Clone returns a deep copy of s
func (s Settings) Clone() Settings {
	out := s
	out.Instructions.Variables = cloneStringMap(s.Instructions.Variables)
	if s.Instructions.Custom != nil {
		out.Instructions.Custom = make([]InstructionTemplate, len(s.Instructions.Custom))
		for i, t := range s.Instructions.Custom {
			t.Variables = cloneStringMap(t.Variables)
			out.Instructions.Custom[i] = t
		}
	}
	if s.Game.Identifiers != nil {
		out.Game.Identifiers = append([]string(nil), s.Game.Identifiers...)
	}
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MergeSettings applies patch on top of base. The result is always fully
// populated because every key of base survives unless the patch replaces it.
func MergeSettings(base Settings, patch SettingsPatch) (Settings, error) {
	if len(patch) == 0 {
		return base.Clone(), nil
	}

	raw, err := yaml.Marshal(base)
	if err != nil {
		return base, fmt.Errorf("failed to encode settings: %w", err)
	}
	tree := map[string]any{}
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return base, fmt.Errorf("failed to decode settings tree: %w", err)
	}

	mergeTree(tree, patch)

	var merged Settings
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &merged,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return base, fmt.Errorf("failed to create settings decoder: %w", err)
	}
	if err := decoder.Decode(tree); err != nil {
		return base, fmt.Errorf("invalid settings patch: %w", err)
	}

	merged.normalize()
	return merged, nil
}

func mergeTree(dst map[string]any, patch map[string]any) {
	for key, value := range patch {
		sub, isMap := asTree(value)
		current, hasMap := asTree(dst[key])
		if isMap && hasMap {
			mergeTree(current, sub)
			dst[key] = current
			continue
		}
		dst[key] = value
	}
}

func asTree(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case SettingsPatch:
		return map[string]any(m), true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, true
	}
	return nil, false
}

// normalize backfills values that would break consumers and clamps ranges
func (s *Settings) normalize() {
	d := DefaultSettings()

	if s.Provider.Name == "" {
		s.Provider.Name = d.Provider.Name
	}
	if s.Provider.Model == "" {
		s.Provider.Model = DefaultModel(s.Provider.Name)
	}
	if s.Provider.MaxRetries < 0 {
		s.Provider.MaxRetries = 0
	}
	if s.Provider.TimeoutMs <= 0 {
		s.Provider.TimeoutMs = d.Provider.TimeoutMs
	}
	if s.Capture.JPEGQuality <= 0 || s.Capture.JPEGQuality > 100 {
		s.Capture.JPEGQuality = d.Capture.JPEGQuality
	}
	if s.Overlay.Width <= 0 {
		s.Overlay.Width = d.Overlay.Width
	}
	if s.Overlay.Height <= 0 {
		s.Overlay.Height = d.Overlay.Height
	}
	s.Overlay.Opacity = clamp(s.Overlay.Opacity, 0, 1)
	s.Overlay.Position.X = clamp(s.Overlay.Position.X, 0, 100)
	s.Overlay.Position.Y = clamp(s.Overlay.Position.Y, 0, 100)
	if s.AdviceFrequencyMs <= 0 {
		s.AdviceFrequencyMs = d.AdviceFrequencyMs
	}
	if s.MaxAdviceHistory <= 0 {
		s.MaxAdviceHistory = d.MaxAdviceHistory
	}
	if s.Instructions.Variables == nil {
		s.Instructions.Variables = map[string]string{}
	}
	if s.Instructions.Custom == nil {
		s.Instructions.Custom = []InstructionTemplate{}
	}
	if s.Game.DetectIntervalMs <= 0 {
		s.Game.DetectIntervalMs = d.Game.DetectIntervalMs
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
