package dbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/dooshek/gamecoach/internal/detect"
	"github.com/dooshek/gamecoach/internal/orchestrator"
	"github.com/dooshek/gamecoach/internal/state"
	"github.com/dooshek/gamecoach/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnalysis struct {
	enabled bool
}

func (f *fakeAnalysis) Enable()      { f.enabled = true }
func (f *fakeAnalysis) Disable()     { f.enabled = false }
func (f *fakeAnalysis) Toggle() bool { f.enabled = !f.enabled; return f.enabled }
func (f *fakeAnalysis) History() []types.Advice {
	return []types.Advice{{ID: "2", Advice: "newer"}, {ID: "1", Advice: "older"}}
}
func (f *fakeAnalysis) Status() orchestrator.Status {
	return orchestrator.Status{Enabled: f.enabled, Provider: "openai"}
}

type fakeOverlay struct{ err error }

func (f *fakeOverlay) ShowOverlay(context.Context) error { return f.err }
func (f *fakeOverlay) HideOverlay(context.Context) error { return f.err }

type fakeDetector struct{}

func (fakeDetector) Last() detect.Result { return detect.Result{Running: true, Confidence: 0.9} }

func newTestServer(overlayErr error) (*Server, *state.Store, *fakeAnalysis) {
	store := state.New(nil)
	a := &fakeAnalysis{}
	return NewServer(store, a, &fakeOverlay{err: overlayErr}, nil, fakeDetector{}), store, a
}

func TestGetStatus(t *testing.T) {
	s, store, _ := newTestServer(nil)
	store.SetOverlayVisible(true)

	require.Nil(t, s.StartAnalysis())
	raw, err := s.GetStatus()
	require.Nil(t, err)

	var status Status
	require.NoError(t, json.Unmarshal([]byte(raw), &status))
	assert.True(t, status.Analysis.Enabled)
	assert.True(t, status.OverlayVisible)
	assert.True(t, status.Game.Running)
	assert.Equal(t, uint64(1), status.Version)
}

func TestToggleAndHistory(t *testing.T) {
	s, _, a := newTestServer(nil)

	enabled, err := s.ToggleAnalysis()
	require.Nil(t, err)
	assert.True(t, enabled)
	assert.True(t, a.enabled)

	require.Nil(t, s.StopAnalysis())
	assert.False(t, a.enabled)

	raw, err := s.GetHistory()
	require.Nil(t, err)
	var history []types.Advice
	require.NoError(t, json.Unmarshal([]byte(raw), &history))
	require.Len(t, history, 2)
	assert.Equal(t, "newer", history[0].Advice)

	stats, err := s.GetStats()
	require.Nil(t, err)
	assert.Equal(t, "{}", stats)
}

func TestOverlayErrorsBecomeDBusErrors(t *testing.T) {
	s, _, _ := newTestServer(errors.New("shutting down"))
	derr := s.ShowOverlay()
	require.NotNil(t, derr)
	assert.Contains(t, derr.Error(), "shutting down")

	ok, _, _ := newTestServer(nil)
	assert.Nil(t, ok.HideOverlay())
}

func TestDiffSignals(t *testing.T) {
	prev := types.DefaultGlobalState()
	next := prev.Clone()
	next.LastAnalysis = &types.Advice{ID: "a", Advice: "Dodge", Confidence: 0.8, Provider: "groq"}
	next.IsAnalyzing = true

	sigs := diffSignals(prev, next)
	require.Len(t, sigs, 2)
	assert.Equal(t, "AdviceReady", sigs[0].name)
	assert.Equal(t, []interface{}{"Dodge", 0.8, "groq"}, sigs[0].args)
	assert.Equal(t, "AnalysisStateChanged", sigs[1].name)

	again := next.Clone()
	again.IsOverlayVisible = true
	sigs = diffSignals(next, again)
	require.Len(t, sigs, 1)
	assert.Equal(t, "OverlayVisibilityChanged", sigs[0].name)
}
