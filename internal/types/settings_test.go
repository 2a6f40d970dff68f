package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeSettingsEmptyPatchKeepsDefaults(t *testing.T) {
	merged, err := MergeSettings(DefaultSettings(), SettingsPatch{})
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), merged)
	assert.True(t, merged.OverlayEnabled)
}

func TestMergeSettingsBackfillsNestedKeys(t *testing.T) {
	merged, err := MergeSettings(DefaultSettings(), SettingsPatch{
		"overlay": map[string]any{"opacity": 0.5},
		"provider": map[string]any{
			"apiKeys": map[string]any{"gemini": "g-key"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 0.5, merged.Overlay.Opacity)
	assert.Equal(t, ThemeDark, merged.Overlay.Theme)
	assert.Equal(t, 300, merged.Overlay.Width)
	assert.Equal(t, "g-key", merged.Provider.APIKeys.Gemini)
	assert.Equal(t, 3, merged.Provider.MaxRetries)
	assert.Equal(t, DefaultSystemInstruction, merged.Instructions.SystemInstruction)
}

func TestMergeSettingsReplacesScalarsAndLists(t *testing.T) {
	merged, err := MergeSettings(DefaultSettings(), SettingsPatch{
		"overlayEnabled":    false,
		"adviceFrequencyMs": float64(2000),
		"game": map[string]any{
			"identifiers": []any{"Hades"},
		},
	})
	require.NoError(t, err)

	assert.False(t, merged.OverlayEnabled)
	assert.Equal(t, 2000, merged.AdviceFrequencyMs)
	assert.Equal(t, []string{"Hades"}, merged.Game.Identifiers)
	assert.Equal(t, 5000, merged.Game.DetectIntervalMs)
}

func TestMergeSettingsAcceptsTypedValues(t *testing.T) {
	merged, err := MergeSettings(DefaultSettings(), SettingsPatch{
		"overlay": OverlaySettings{Theme: ThemeLight, Opacity: 0.7, Width: 400, Height: 200, Position: Position{X: 20, Y: 80}},
		"instructions": map[string]any{
			"custom": []InstructionTemplate{{ID: "mine", Name: "Mine", SystemPrompt: "Be brief", Category: CategoryGeneral}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, ThemeLight, merged.Overlay.Theme)
	assert.Equal(t, 400, merged.Overlay.Width)
	assert.Equal(t, Position{X: 20, Y: 80}, merged.Overlay.Position)
	require.Len(t, merged.Instructions.Custom, 1)
	assert.Equal(t, "mine", merged.Instructions.Custom[0].ID)
}

func TestMergeSettingsClampsRanges(t *testing.T) {
	merged, err := MergeSettings(DefaultSettings(), SettingsPatch{
		"overlay": map[string]any{
			"opacity":  3,
			"position": map[string]any{"x": 150, "y": -5},
		},
		"maxAdviceHistory": 0,
	})
	require.NoError(t, err)

	assert.Equal(t, 1.0, merged.Overlay.Opacity)
	assert.Equal(t, Position{X: 100, Y: 0}, merged.Overlay.Position)
	assert.Equal(t, 10, merged.MaxAdviceHistory)
}

func TestMergeSettingsRejectsBadValues(t *testing.T) {
	base := DefaultSettings()
	_, err := MergeSettings(base, SettingsPatch{"adviceFrequencyMs": "often"})
	assert.Error(t, err)
}

func TestSettingsCloneIsIndependent(t *testing.T) {
	s := DefaultSettings()
	s.Instructions.Variables["hero"] = "Scarlet"

	c := s.Clone()
	c.Instructions.Variables["hero"] = "Beowulf"
	c.Game.Identifiers[0] = "changed"

	assert.Equal(t, "Scarlet", s.Instructions.Variables["hero"])
	assert.Equal(t, "Ravenswatch", s.Game.Identifiers[0])
}

func TestProviderKeyFollowsSelectedProvider(t *testing.T) {
	p := ProviderSettings{Name: ProviderGroq, APIKeys: APIKeys{OpenAI: "o", Groq: "q"}}
	assert.Equal(t, "q", p.Key())

	p.Name = ProviderOpenAI
	assert.Equal(t, "o", p.Key())
}

func TestGameStatePatchApply(t *testing.T) {
	detected := true
	source := "screen:0"
	g := GameStatePatch{Detected: &detected, CurrentSourceID: &source}.Apply(GameState{Capturing: true})

	assert.True(t, g.Detected)
	assert.True(t, g.Capturing)
	assert.Equal(t, "screen:0", g.CurrentSourceID)
}
