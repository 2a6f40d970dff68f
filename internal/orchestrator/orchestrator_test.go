package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dooshek/gamecoach/internal/analysis"
	"github.com/dooshek/gamecoach/internal/state"
	"github.com/dooshek/gamecoach/internal/syncclient"
	"github.com/dooshek/gamecoach/internal/templates"
	"github.com/dooshek/gamecoach/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCapture struct {
	mu       sync.Mutex
	running  bool
	sourceID string
	starts   int
}

func (c *fakeCapture) Configure(types.CaptureSettings) {}

func (c *fakeCapture) Start(_ context.Context, sourceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
	c.sourceID = sourceID
	c.starts++
	return nil
}

func (c *fakeCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
}

func (c *fakeCapture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *fakeCapture) CaptureFrame(context.Context) ([]byte, error) {
	return []byte("frame"), nil
}

// stubClient is a remote client whose calls block until released
type stubClient struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
	err     error
}

func (c *stubClient) Name() string { return "stub" }

func (c *stubClient) Analyze(ctx context.Context, _ []byte, _ string) (string, error) {
	c.mu.Lock()
	c.calls++
	release, err := c.release, c.err
	c.mu.Unlock()

	if release != nil {
		<-release
	}
	if err != nil {
		return "", err
	}
	return "Dodge the elite's charge, then attack from behind while your ability recharges", nil
}

func (c *stubClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type recorder struct {
	mu       sync.Mutex
	failures int
	total    int
}

func (r *recorder) Record(_ string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total++
	if err != nil {
		r.failures++
	}
}

type harness struct {
	store   *state.Store
	client  *syncclient.Client
	capture *fakeCapture
	remote  *stubClient
	rec     *recorder
	orch    *Orchestrator
}

func newHarness(t *testing.T, remote *stubClient, patch types.SettingsPatch) *harness {
	t.Helper()

	store := state.New(nil)
	if patch != nil {
		require.NoError(t, store.SetSettings(patch))
	}
	client := syncclient.New(syncclient.NewLocalBackend(store, nil))
	require.NoError(t, client.Initialize(context.Background()))
	t.Cleanup(client.Close)

	h := &harness{
		store:   store,
		client:  client,
		capture: &fakeCapture{},
		remote:  remote,
		rec:     &recorder{},
	}
	factory := func(p types.ProviderSettings) (Analyzer, error) {
		return analysis.NewService(remote, p.MaxRetries, analysis.WithBackoffUnit(time.Millisecond)), nil
	}
	h.orch = New(client, h.capture, templates.NewCatalog(), WithAnalyzerFactory(factory), WithRecorder(h.rec))
	return h
}

func (h *harness) waitMirror(t *testing.T, cond func(types.GlobalState) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(h.client.State()) }, 2*time.Second, 5*time.Millisecond)
}

func TestTickIsSingleFlight(t *testing.T) {
	remote := &stubClient{release: make(chan struct{})}
	h := newHarness(t, remote, nil)
	ctx := context.Background()
	h.orch.evaluate(ctx)

	require.True(t, h.orch.Tick(ctx))
	require.Eventually(t, func() bool { return remote.Calls() == 1 }, time.Second, time.Millisecond)
	assert.False(t, h.orch.Tick(ctx))
	assert.True(t, h.orch.Status().Analyzing)

	close(remote.release)
	h.waitMirror(t, func(st types.GlobalState) bool { return st.LastAnalysis != nil && !st.IsAnalyzing })

	assert.Equal(t, 1, remote.Calls())
	assert.Equal(t, "stub", h.store.GetState().LastAnalysis.Provider)
	assert.Len(t, h.orch.History(), 1)
}

func TestFailureProducesDegradedAdvice(t *testing.T) {
	remote := &stubClient{err: errors.New("quota exceeded")}
	h := newHarness(t, remote, types.SettingsPatch{"provider": map[string]any{"maxRetries": 2}})
	ctx := context.Background()
	h.orch.evaluate(ctx)

	require.True(t, h.orch.Tick(ctx))
	h.waitMirror(t, func(st types.GlobalState) bool { return st.LastAnalysis != nil && !st.IsAnalyzing })

	last := h.store.GetState().LastAnalysis
	assert.Less(t, last.Confidence, 0.2)
	assert.Equal(t, types.ProviderNameError, last.Provider)
	assert.Contains(t, last.Advice, "quota exceeded")
	assert.Equal(t, 3, remote.Calls())
	assert.Empty(t, h.orch.History())

	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	assert.Equal(t, 1, h.rec.failures)
}

func TestDeadlineWinsOverSlowCall(t *testing.T) {
	remote := &stubClient{release: make(chan struct{})}
	defer close(remote.release)
	h := newHarness(t, remote, types.SettingsPatch{"provider": map[string]any{"timeoutMs": 50}})
	ctx := context.Background()
	h.orch.evaluate(ctx)

	start := time.Now()
	require.True(t, h.orch.Tick(ctx))
	h.waitMirror(t, func(st types.GlobalState) bool { return st.LastAnalysis != nil && !st.IsAnalyzing })

	assert.Less(t, time.Since(start), time.Second)
	last := h.store.GetState().LastAnalysis
	assert.Equal(t, types.ProviderNameError, last.Provider)
	assert.Contains(t, last.Advice, "timed out")
}

func TestArmsOnlyWithEnableAndSource(t *testing.T) {
	remote := &stubClient{}
	h := newHarness(t, remote, types.SettingsPatch{"adviceFrequencyMs": 20})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.orch.Run(ctx) }()

	h.orch.Enable()
	require.Eventually(t, func() bool { return h.orch.Status().Blocked == ErrNoSource.Error() }, time.Second, 5*time.Millisecond)
	assert.False(t, h.orch.Status().Armed)
	assert.False(t, h.capture.Running())

	require.NoError(t, h.client.SetSettings(ctx, types.SettingsPatch{"captureSourceId": "screen:0"}))
	h.waitMirror(t, func(st types.GlobalState) bool {
		return st.GameState.Capturing && st.GameState.CurrentSourceID == "screen:0" && st.LastAnalysis != nil
	})
	assert.True(t, h.capture.Running())
	assert.True(t, h.orch.Status().Armed)

	h.orch.Disable()
	h.waitMirror(t, func(st types.GlobalState) bool { return !st.GameState.Capturing })
	assert.False(t, h.capture.Running())
	assert.False(t, h.orch.Status().Armed)

	cancel()
	require.NoError(t, <-done)
}

func TestDisarmLetsInflightCycleFinish(t *testing.T) {
	remote := &stubClient{release: make(chan struct{})}
	h := newHarness(t, remote, types.SettingsPatch{"captureSourceId": "screen:0", "adviceFrequencyMs": 10})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.orch.Run(ctx)
	h.orch.Enable()
	require.Eventually(t, func() bool { return remote.Calls() == 1 }, time.Second, time.Millisecond)

	h.orch.Disable()
	require.Eventually(t, func() bool { return !h.orch.Status().Armed }, time.Second, time.Millisecond)

	close(remote.release)
	h.waitMirror(t, func(st types.GlobalState) bool { return st.LastAnalysis != nil && !st.IsAnalyzing })
	assert.Equal(t, "stub", h.store.GetState().LastAnalysis.Provider)
	assert.Equal(t, 1, remote.Calls())
}

func TestMissingCredentialKeepsIdle(t *testing.T) {
	store := state.New(nil)
	require.NoError(t, store.SetSettings(types.SettingsPatch{"captureSourceId": "screen:0"}))
	client := syncclient.New(syncclient.NewLocalBackend(store, nil))
	require.NoError(t, client.Initialize(context.Background()))
	defer client.Close()

	capture := &fakeCapture{}
	o := New(client, capture, templates.NewCatalog())
	o.Enable()
	o.evaluate(context.Background())

	status := o.Status()
	assert.False(t, status.Armed)
	assert.Contains(t, status.Blocked, "no API key")
	assert.False(t, capture.Running())
}

func TestToggle(t *testing.T) {
	h := newHarness(t, &stubClient{}, nil)
	assert.True(t, h.orch.Toggle())
	assert.True(t, h.orch.Enabled())
	assert.False(t, h.orch.Toggle())
	assert.False(t, h.orch.Enabled())
}
