package types

import (
	"time"

	"github.com/sashabaranov/go-openai"
)

// Role identifies a presentation surface
type Role string

const (
	RolePrimary Role = "primary"
	RoleOverlay Role = "overlay"
)

// GameState describes the watched application and the capture pipeline
type GameState struct {
	Detected        bool      `json:"detected"`
	Capturing       bool      `json:"capturing"`
	CurrentSourceID string    `json:"currentSourceId"`
	LastFrameTime   time.Time `json:"lastFrameTime"`
}

// GameStatePatch carries a partial GameState, nil fields are left untouched
type GameStatePatch struct {
	Detected        *bool      `json:"detected,omitempty"`
	Capturing       *bool      `json:"capturing,omitempty"`
	CurrentSourceID *string    `json:"currentSourceId,omitempty"`
	LastFrameTime   *time.Time `json:"lastFrameTime,omitempty"`
}

// Apply merges the patch into g and returns the result
func (p GameStatePatch) Apply(g GameState) GameState {
	if p.Detected != nil {
		g.Detected = *p.Detected
	}
	if p.Capturing != nil {
		g.Capturing = *p.Capturing
	}
	if p.CurrentSourceID != nil {
		g.CurrentSourceID = *p.CurrentSourceID
	}
	if p.LastFrameTime != nil {
		g.LastFrameTime = *p.LastFrameTime
	}
	return g
}

// Advice is one analysis outcome, real or degraded
type Advice struct {
	ID             string    `json:"id"`
	Advice         string    `json:"advice"`
	Confidence     float64   `json:"confidence"`
	Provider       string    `json:"provider"`
	Timestamp      time.Time `json:"timestamp"`
	AnalysisTimeMs int64     `json:"analysisTimeMs"`
}

// GlobalState is the single replicated application state
type GlobalState struct {
	GameState        GameState `json:"gameState"`
	IsAnalyzing      bool      `json:"isAnalyzing"`
	LastAnalysis     *Advice   `json:"lastAnalysis"`
	Settings         Settings  `json:"settings"`
	IsOverlayVisible bool      `json:"isOverlayVisible"`
	Version          uint64    `json:"version"`
}

// Clone returns a deep copy that shares no mutable memory with s
func (s GlobalState) Clone() GlobalState {
	out := s
	if s.LastAnalysis != nil {
		a := *s.LastAnalysis
		out.LastAnalysis = &a
	}
	out.Settings = s.Settings.Clone()
	return out
}

// DefaultGlobalState returns the compiled-in initial state
func DefaultGlobalState() GlobalState {
	return GlobalState{Settings: DefaultSettings()}
}

// Source is a capturable display or window
type Source struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Thumbnail string `json:"thumbnail"`
}

// Bounds is an absolute rectangle in display pixels
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Size is a width/height pair in pixels
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// KeyCombo interface for types that can be printed as a key combination
type KeyCombo interface {
	HasCtrl() bool
	HasShift() bool
	HasAlt() bool
	HasSuper() bool
	GetKey() string
}

type KeyBinding struct {
	Key   string `yaml:"key" json:"key" mapstructure:"key"`
	Ctrl  bool   `yaml:"ctrl" json:"ctrl" mapstructure:"ctrl"`
	Shift bool   `yaml:"shift" json:"shift" mapstructure:"shift"`
	Alt   bool   `yaml:"alt" json:"alt" mapstructure:"alt"`
	Super bool   `yaml:"super" json:"super" mapstructure:"super"`
}

func (kb KeyBinding) HasCtrl() bool  { return kb.Ctrl }
func (kb KeyBinding) HasShift() bool { return kb.Shift }
func (kb KeyBinding) HasAlt() bool   { return kb.Alt }
func (kb KeyBinding) HasSuper() bool { return kb.Super }
func (kb KeyBinding) GetKey() string { return kb.Key }

type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderGemini LLMProvider = "gemini"
	ProviderGroq   LLMProvider = "groq"
)

const (
	OpenAIModelGPT4oMini string = string(openai.GPT4oMini)
	OpenAIModelGPT4o     string = string(openai.GPT4o)
)

const (
	GeminiModelFlash string = "gemini-2.0-flash"
)

const (
	GroqModelLLama3_2_11B_Vision string = "llama-3.2-11b-vision-preview"
	GroqModelLLama3_2_90B_Vision string = "llama-3.2-90b-vision-preview"
)

// DefaultModel returns the vision model used when settings leave it empty
func DefaultModel(p LLMProvider) string {
	switch p {
	case ProviderGemini:
		return GeminiModelFlash
	case ProviderGroq:
		return GroqModelLLama3_2_11B_Vision
	default:
		return OpenAIModelGPT4oMini
	}
}

// ProviderNameError tags degraded results
const ProviderNameError = "error"
