package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dooshek/gamecoach/internal/analysis"
	"github.com/dooshek/gamecoach/internal/llm"
	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/dooshek/gamecoach/internal/types"
	"golang.org/x/sync/semaphore"
)

// ErrNoSource means no capture source has been selected
var ErrNoSource = errors.New("no capture source selected")

// StateClient is the Sync Client surface the orchestrator reads and writes
type StateClient interface {
	State() types.GlobalState
	Subscribe(fn func(types.GlobalState)) (unsubscribe func())
	SetAnalyzing(ctx context.Context, analyzing bool) error
	SetLastAnalysis(ctx context.Context, advice *types.Advice) error
	SetGameState(ctx context.Context, patch types.GameStatePatch) error
}

// Capturer produces frames for the selected source
type Capturer interface {
	Configure(settings types.CaptureSettings)
	Start(ctx context.Context, sourceID string) error
	Stop()
	Running() bool
	CaptureFrame(ctx context.Context) ([]byte, error)
}

// Analyzer turns a frame and prompt into advice
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, prompt string) (types.Advice, error)
	Provider() string
}

// AnalyzerFactory builds an Analyzer for the configured provider
type AnalyzerFactory func(types.ProviderSettings) (Analyzer, error)

// PromptBuilder renders the prompt for the active instructions
type PromptBuilder interface {
	BuildPrompt(settings types.Settings) string
}

// Recorder receives the outcome of every cycle that reached the provider
type Recorder interface {
	Record(provider string, duration time.Duration, err error)
}

// NewAnalyzer is the production AnalyzerFactory
func NewAnalyzer(settings types.ProviderSettings) (Analyzer, error) {
	client, err := llm.NewClient(settings)
	if err != nil {
		return nil, err
	}
	return analysis.NewService(client, settings.MaxRetries), nil
}

// Status is a point-in-time view for control clients
type Status struct {
	Enabled   bool   `json:"enabled"`
	Armed     bool   `json:"armed"`
	Analyzing bool   `json:"analyzing"`
	Provider  string `json:"provider"`
	Blocked   string `json:"blocked,omitempty"`
}

type Option func(*Orchestrator)

func WithAnalyzerFactory(f AnalyzerFactory) Option {
	return func(o *Orchestrator) { o.newAnalyzer = f }
}

func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// Orchestrator runs the periodic capture and analysis loop.
// It is Armed while enabled, configured with a credential and a capture
// source; otherwise Idle. At most one analysis is in flight at any time.
type Orchestrator struct {
	client      StateClient
	capture     Capturer
	prompts     PromptBuilder
	newAnalyzer AnalyzerFactory
	recorder    Recorder
	history     *analysis.History

	flight   *semaphore.Weighted
	inflight sync.WaitGroup
	wake     chan struct{}

	mu          sync.Mutex
	enabled     bool
	analyzer    Analyzer
	provider    types.ProviderSettings
	hasProvider bool
	blocked     error
	armed       *armedLoop
}

type armedLoop struct {
	sourceID  string
	frequency time.Duration
	timeout   time.Duration
	stop      chan struct{}
	done      chan struct{}
}

func New(client StateClient, capture Capturer, prompts PromptBuilder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:      client,
		capture:     capture,
		prompts:     prompts,
		newAnalyzer: NewAnalyzer,
		history:     analysis.NewHistory(types.DefaultSettings().MaxAdviceHistory),
		flight:      semaphore.NewWeighted(1),
		wake:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run evaluates the mirrored state on every update until ctx is done, then
// disarms and waits for the in-flight cycle to return
func (o *Orchestrator) Run(ctx context.Context) error {
	unsubscribe := o.client.Subscribe(func(types.GlobalState) {
		o.poke()
	})
	defer unsubscribe()

	o.evaluate(ctx)
	for {
		select {
		case <-ctx.Done():
			o.disarm(context.WithoutCancel(ctx))
			o.inflight.Wait()
			return nil
		case <-o.wake:
			o.evaluate(ctx)
		}
	}
}

func (o *Orchestrator) poke() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) Enable() {
	o.setEnabled(func(bool) bool { return true })
}

func (o *Orchestrator) Disable() {
	o.setEnabled(func(bool) bool { return false })
}

// Toggle flips the enable gate and returns the new value
func (o *Orchestrator) Toggle() bool {
	return o.setEnabled(func(enabled bool) bool { return !enabled })
}

func (o *Orchestrator) setEnabled(next func(bool) bool) bool {
	o.mu.Lock()
	o.enabled = next(o.enabled)
	enabled := o.enabled
	o.mu.Unlock()

	if enabled {
		logger.Info("Analysis enabled")
	} else {
		logger.Info("Analysis disabled")
	}
	o.poke()
	return enabled
}

func (o *Orchestrator) Enabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.enabled
}

// History returns recent successful advice, newest first
func (o *Orchestrator) History() []types.Advice {
	return o.history.Items()
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := Status{
		Enabled:   o.enabled,
		Armed:     o.armed != nil,
		Analyzing: o.busy(),
	}
	if o.analyzer != nil {
		s.Provider = o.analyzer.Provider()
	}
	if o.blocked != nil {
		s.Blocked = o.blocked.Error()
	}
	return s
}

func (o *Orchestrator) busy() bool {
	if o.flight.TryAcquire(1) {
		o.flight.Release(1)
		return false
	}
	return true
}

// evaluate reconciles Idle/Armed with the latest mirror and enable gate
func (o *Orchestrator) evaluate(ctx context.Context) {
	st := o.client.State()
	settings := st.Settings

	o.history.Resize(settings.MaxAdviceHistory)
	o.capture.Configure(settings.Capture)

	o.mu.Lock()
	if !o.hasProvider || o.provider != settings.Provider {
		o.provider = settings.Provider
		o.hasProvider = true
		o.analyzer = nil
		a, err := o.newAnalyzer(settings.Provider)
		if err != nil {
			logger.Warnf("Analysis provider unavailable: %v", err)
		} else {
			o.analyzer = a
			logger.Infof("Analysis provider ready: %s (%s)", a.Provider(), settings.Provider.Model)
		}
		o.blocked = err
	}

	want := o.enabled && o.analyzer != nil && settings.CaptureSourceID != ""
	if o.enabled && o.analyzer != nil && settings.CaptureSourceID == "" {
		o.blocked = ErrNoSource
	} else if errors.Is(o.blocked, ErrNoSource) {
		o.blocked = nil
	}

	frequency := time.Duration(settings.AdviceFrequencyMs) * time.Millisecond
	timeout := time.Duration(settings.Provider.TimeoutMs) * time.Millisecond
	current := o.armed
	o.mu.Unlock()

	switch {
	case !want && current != nil:
		o.disarm(ctx)
	case want && current == nil:
		o.arm(ctx, settings.CaptureSourceID, frequency, timeout)
	case want && (current.sourceID != settings.CaptureSourceID || current.frequency != frequency || current.timeout != timeout):
		o.disarm(ctx)
		o.arm(ctx, settings.CaptureSourceID, frequency, timeout)
	}
}

func (o *Orchestrator) arm(ctx context.Context, sourceID string, frequency, timeout time.Duration) {
	if err := o.capture.Start(ctx, sourceID); err != nil {
		logger.Error("Failed to start capture", err)
		o.mu.Lock()
		o.blocked = err
		o.mu.Unlock()
		return
	}

	loop := &armedLoop{
		sourceID:  sourceID,
		frequency: frequency,
		timeout:   timeout,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	o.mu.Lock()
	o.armed = loop
	o.mu.Unlock()

	capturing := true
	if err := o.client.SetGameState(ctx, types.GameStatePatch{Capturing: &capturing, CurrentSourceID: &sourceID}); err != nil {
		logger.Warnf("Failed to publish capture state: %v", err)
	}

	logger.Infof("Analysis armed on %s every %s", sourceID, frequency)
	go o.tickLoop(ctx, loop)
}

func (o *Orchestrator) tickLoop(ctx context.Context, loop *armedLoop) {
	defer close(loop.done)

	ticker := time.NewTicker(loop.frequency)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-loop.stop:
			return
		case <-ticker.C:
			o.tick(ctx, loop.timeout)
		}
	}
}

// disarm stops the timer and capture. An in-flight cycle keeps running and
// still applies its result.
func (o *Orchestrator) disarm(ctx context.Context) {
	o.mu.Lock()
	loop := o.armed
	o.armed = nil
	o.mu.Unlock()

	if loop == nil {
		return
	}
	close(loop.stop)
	<-loop.done

	o.capture.Stop()
	capturing := false
	if err := o.client.SetGameState(ctx, types.GameStatePatch{Capturing: &capturing}); err != nil {
		logger.Warnf("Failed to publish capture state: %v", err)
	}
	logger.Info("Analysis idle")
}

// Tick runs one cycle unless another is still in flight, in which case the
// tick is dropped. It reports whether a cycle was started.
func (o *Orchestrator) Tick(ctx context.Context) bool {
	o.mu.Lock()
	timeout := time.Duration(o.provider.TimeoutMs) * time.Millisecond
	o.mu.Unlock()
	return o.tick(ctx, timeout)
}

func (o *Orchestrator) tick(ctx context.Context, timeout time.Duration) bool {
	if !o.flight.TryAcquire(1) {
		logger.Debug("Previous analysis still running, dropping tick")
		return false
	}

	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		defer o.flight.Release(1)
		o.cycle(ctx, timeout)
	}()
	return true
}

type result struct {
	advice types.Advice
	err    error
}

func (o *Orchestrator) cycle(ctx context.Context, timeout time.Duration) {
	o.mu.Lock()
	analyzer := o.analyzer
	o.mu.Unlock()
	if analyzer == nil {
		return
	}

	frame, err := o.capture.CaptureFrame(ctx)
	if err != nil {
		logger.Warnf("Frame capture failed: %v", err)
		return
	}
	if frame == nil {
		logger.Debug("No frame available, skipping cycle")
		return
	}

	// Writes after this point must land even if ctx ends mid-cycle
	writeCtx := context.WithoutCancel(ctx)
	if err := o.client.SetAnalyzing(writeCtx, true); err != nil {
		logger.Warnf("Failed to publish analyzing state: %v", err)
	}
	defer func() {
		if err := o.client.SetAnalyzing(writeCtx, false); err != nil {
			logger.Warnf("Failed to clear analyzing state: %v", err)
		}
	}()

	prompt := o.prompts.BuildPrompt(o.client.State().Settings)
	start := time.Now()

	advice, err := race(ctx, timeout, func(callCtx context.Context) (types.Advice, error) {
		return analyzer.Analyze(callCtx, frame, prompt)
	})
	elapsed := time.Since(start)

	if o.recorder != nil {
		o.recorder.Record(analyzer.Provider(), elapsed, err)
	}

	if err != nil {
		logger.Error("Analysis failed", err)
		degraded := analysis.Degraded(err, elapsed)
		if err := o.client.SetLastAnalysis(writeCtx, &degraded); err != nil {
			logger.Warnf("Failed to publish degraded result: %v", err)
		}
		return
	}

	logger.Debugf("Advice from %s in %dms (confidence %.2f)", advice.Provider, advice.AnalysisTimeMs, advice.Confidence)
	if err := o.client.SetLastAnalysis(writeCtx, &advice); err != nil {
		logger.Warnf("Failed to publish advice: %v", err)
	}
	o.history.Add(advice)

	now := time.Now()
	if err := o.client.SetGameState(writeCtx, types.GameStatePatch{LastFrameTime: &now}); err != nil {
		logger.Warnf("Failed to publish frame time: %v", err)
	}
}

// race waits for call or the deadline, whichever comes first. The call's
// context is cancelled when the deadline wins, and a late result is dropped.
func race(ctx context.Context, timeout time.Duration, call func(context.Context) (types.Advice, error)) (types.Advice, error) {
	if timeout <= 0 {
		timeout = time.Duration(types.DefaultSettings().Provider.TimeoutMs) * time.Millisecond
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		advice, err := call(callCtx)
		done <- result{advice: advice, err: err}
	}()

	select {
	case r := <-done:
		return r.advice, r.err
	case <-callCtx.Done():
		return types.Advice{}, fmt.Errorf("analysis timed out after %s: %w", timeout, callCtx.Err())
	}
}
