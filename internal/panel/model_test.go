package panel

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dooshek/gamecoach/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	calls []string
	patch types.SettingsPatch
	err   error
}

func (f *fakeController) StartAnalysis(context.Context) error {
	f.calls = append(f.calls, "start")
	return f.err
}

func (f *fakeController) StopAnalysis(context.Context) error {
	f.calls = append(f.calls, "stop")
	return f.err
}

func (f *fakeController) ShowOverlay(context.Context) error {
	f.calls = append(f.calls, "show")
	return f.err
}

func (f *fakeController) HideOverlay(context.Context) error {
	f.calls = append(f.calls, "hide")
	return f.err
}

func (f *fakeController) SetSettings(_ context.Context, patch types.SettingsPatch) error {
	f.calls = append(f.calls, "settings")
	f.patch = patch
	return f.err
}

func press(t *testing.T, m Model, k string) (Model, tea.Msg) {
	t.Helper()
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
	require.NotNil(t, cmd)
	msg := cmd()
	updated, _ := next.(Model).Update(msg)
	return updated.(Model), msg
}

func TestKeysDriveController(t *testing.T) {
	ctrl := &fakeController{}
	m := New(ctrl, types.DefaultGlobalState())

	m, _ = press(t, m, "a")
	m, _ = press(t, m, "o")
	m, _ = press(t, m, "h")
	m, _ = press(t, m, "x")
	assert.Equal(t, []string{"start", "show", "hide", "stop"}, ctrl.calls)
	assert.Contains(t, m.View(), "analysis stopped")
}

func TestToggleOverlayEnabledFlipsMirrorValue(t *testing.T) {
	ctrl := &fakeController{}
	m := New(ctrl, types.DefaultGlobalState())
	require.True(t, m.state.Settings.OverlayEnabled)

	press(t, m, "e")
	assert.Equal(t, types.SettingsPatch{"overlayEnabled": false}, ctrl.patch)
}

func TestActionErrorIsShown(t *testing.T) {
	ctrl := &fakeController{err: errors.New("operation not available")}
	m := New(ctrl, types.DefaultGlobalState())

	m, msg := press(t, m, "a")
	assert.Error(t, msg.(resultMsg).err)
	assert.Contains(t, m.View(), "operation not available")
}

func TestStaleStateIsIgnored(t *testing.T) {
	m := New(&fakeController{}, types.DefaultGlobalState())

	newer := types.DefaultGlobalState()
	newer.Version = 5
	newer.IsAnalyzing = true
	next, _ := m.Update(stateMsg(newer))
	m = next.(Model)

	older := types.DefaultGlobalState()
	older.Version = 3
	next, _ = m.Update(stateMsg(older))
	m = next.(Model)

	assert.True(t, m.state.IsAnalyzing)
	assert.Equal(t, uint64(5), m.state.Version)
}

func TestViewShowsAdvice(t *testing.T) {
	gs := types.DefaultGlobalState()
	gs.LastAnalysis = &types.Advice{ID: "1", Advice: "Focus the elite first", Confidence: 0.8, Provider: "openai"}
	m := New(&fakeController{}, gs)

	view := m.View()
	assert.Contains(t, view, "Focus the elite first")
	assert.Contains(t, view, "none selected")
}

func TestQuitKeys(t *testing.T) {
	m := New(&fakeController{}, types.DefaultGlobalState())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	next, cmd := m.Update(disconnectedMsg{})
	require.NotNil(t, cmd)
	assert.Contains(t, next.(Model).View(), "Host disconnected")
}

func TestCopyAdvice(t *testing.T) {
	gs := types.DefaultGlobalState()
	gs.LastAnalysis = &types.Advice{ID: "1", Advice: "Kite the elite", Provider: "openai"}
	m := New(&fakeController{}, gs)
	var copied string
	m.copy = func(s string) error {
		copied = s
		return nil
	}

	m, _ = press(t, m, "c")
	assert.Equal(t, "Kite the elite", copied)
	assert.Contains(t, m.View(), "advice copied")

	m.state.LastAnalysis = &types.Advice{ID: "2", Advice: "Analysis failed: x", Provider: types.ProviderNameError}
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	assert.Nil(t, cmd)
}
