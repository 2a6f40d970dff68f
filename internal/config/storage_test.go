package config

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dooshek/gamecoach/internal/fileops"
	"github.com/dooshek/gamecoach/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorageMissingFileYieldsEmptyPatch(t *testing.T) {
	store := NewFileStorage(fileops.NewFileOpsAt(t.TempDir()))

	patch, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, patch)
}

func TestFileStorageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStorage(fileops.NewFileOpsAt(dir))
	ctx := context.Background()

	settings := types.DefaultSettings()
	settings.Overlay.Opacity = 0.4
	settings.Provider.APIKeys.Groq = "secret"
	require.NoError(t, store.Save(ctx, settings))

	info, err := os.Stat(filepath.Join(dir, fileops.SettingsFilename))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	patch, err := store.Load(ctx)
	require.NoError(t, err)
	merged, err := types.MergeSettings(types.DefaultSettings(), patch)
	require.NoError(t, err)
	assert.Equal(t, settings, merged)
}

func TestFileStoragePartialFileMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileops.SettingsFilename),
		[]byte("overlay:\n  opacity: 0.5\n"), 0o600))

	patch, err := NewFileStorage(fileops.NewFileOpsAt(dir)).Load(context.Background())
	require.NoError(t, err)

	merged, err := types.MergeSettings(types.DefaultSettings(), patch)
	require.NoError(t, err)
	assert.Equal(t, 0.5, merged.Overlay.Opacity)
	assert.Equal(t, types.ThemeDark, merged.Overlay.Theme)
	assert.True(t, merged.OverlayEnabled)
}

func TestFileStorageRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileops.SettingsFilename), []byte("overlay: [unclosed"), 0o600))

	_, err := NewFileStorage(fileops.NewFileOpsAt(dir)).Load(context.Background())
	assert.Error(t, err)
}

func TestWatcherReloadsOnExternalEdit(t *testing.T) {
	dir := t.TempDir()
	files := fileops.NewFileOpsAt(dir)
	store := NewFileStorage(files)

	changes := make(chan types.SettingsPatch, 4)
	w, err := NewWatcher(files.GetSettingsPath(), store, func(p types.SettingsPatch) { changes <- p })
	require.NoError(t, err)
	w.SetDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	require.NoError(t, os.WriteFile(files.GetSettingsPath(), []byte("overlayEnabled: false\n"), 0o600))

	select {
	case patch := <-changes:
		assert.Equal(t, false, patch["overlayEnabled"])
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not report the edit")
	}
}

func TestLoadExternalSkipsOwnSave(t *testing.T) {
	dir := t.TempDir()
	files := fileops.NewFileOpsAt(dir)
	store := NewFileStorage(files)
	ctx := context.Background()

	settings := types.DefaultSettings()
	settings.Overlay.Opacity = 0.4
	require.NoError(t, store.Save(ctx, settings))

	patch, external, err := store.LoadExternal(ctx)
	require.NoError(t, err)
	assert.False(t, external)
	assert.Nil(t, patch)

	require.NoError(t, os.WriteFile(files.GetSettingsPath(), []byte("overlay:\n  opacity: 0.7\n"), 0o600))
	patch, external, err = store.LoadExternal(ctx)
	require.NoError(t, err)
	assert.True(t, external)
	merged, err := types.MergeSettings(settings, patch)
	require.NoError(t, err)
	assert.Equal(t, 0.7, merged.Overlay.Opacity)

	// plain Load still returns the app's own document
	require.NoError(t, store.Save(ctx, settings))
	patch, err = store.Load(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, patch)
}

func TestWatcherIgnoresOwnSaves(t *testing.T) {
	dir := t.TempDir()
	files := fileops.NewFileOpsAt(dir)
	store := NewFileStorage(files)

	changes := make(chan types.SettingsPatch, 4)
	w, err := NewWatcher(files.GetSettingsPath(), store, func(p types.SettingsPatch) { changes <- p })
	require.NoError(t, err)
	w.SetDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	settings := types.DefaultSettings()
	settings.Overlay.Opacity = 0.4
	require.NoError(t, store.Save(ctx, settings))

	select {
	case patch := <-changes:
		t.Fatalf("own save was reloaded: %v", patch)
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(files.GetSettingsPath(), []byte("overlayEnabled: false\n"), 0o600))
	select {
	case patch := <-changes:
		assert.Equal(t, false, patch["overlayEnabled"])
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not report the edit")
	}
}

type memStore struct {
	patch types.SettingsPatch
	saved *types.Settings
}

func (m *memStore) Load(context.Context) (types.SettingsPatch, error) { return m.patch, nil }
func (m *memStore) Save(_ context.Context, s types.Settings) error {
	m.saved = &s
	return nil
}

func TestWizardSavesAnswers(t *testing.T) {
	store := &memStore{patch: types.SettingsPatch{}}
	var out bytes.Buffer
	w := &wizard{
		in:    bufio.NewReader(strings.NewReader("3\ngsk-123\nHades\ny\n")),
		out:   &out,
		store: store,
		capture: func() (KeyPress, error) {
			return KeyPress{Key: "f9", Alt: true}, nil
		},
	}

	require.NoError(t, w.run(context.Background()))
	require.NotNil(t, store.saved)

	s := *store.saved
	assert.Equal(t, types.ProviderGroq, s.Provider.Name)
	assert.Equal(t, types.GroqModelLLama3_2_11B_Vision, s.Provider.Model)
	assert.Equal(t, "gsk-123", s.Provider.APIKeys.Groq)
	assert.Equal(t, []string{"Hades"}, s.Game.Identifiers)
	assert.Equal(t, types.KeyBinding{Key: "f9", Alt: true}, s.Hotkey)
	assert.True(t, s.Setup.Completed)
}

func TestWizardKeepsHotkeyWhenKeyboardUnavailable(t *testing.T) {
	store := &memStore{patch: types.SettingsPatch{}}
	w := &wizard{
		in:      bufio.NewReader(strings.NewReader("\n\n\n")),
		out:     &bytes.Buffer{},
		store:   store,
		capture: func() (KeyPress, error) { return KeyPress{}, errors.New("no device") },
	}

	require.NoError(t, w.run(context.Background()))
	assert.Equal(t, types.DefaultSettings().Hotkey, store.saved.Hotkey)
	assert.Equal(t, types.ProviderOpenAI, store.saved.Provider.Name)
}

type staticSources []types.Source

func (s staticSources) ListSources(context.Context) ([]types.Source, error) { return s, nil }

func TestWizardSelectsCaptureSource(t *testing.T) {
	store := &memStore{patch: types.SettingsPatch{}}
	w := &wizard{
		in:      bufio.NewReader(strings.NewReader("\n\n\n2\ny\n")),
		out:     &bytes.Buffer{},
		store:   store,
		sources: staticSources{{ID: "screen:0", Name: "Display 1"}, {ID: "screen:1", Name: "Display 2"}},
		capture: func() (KeyPress, error) { return KeyPress{Key: "f9"}, nil },
	}

	require.NoError(t, w.run(context.Background()))
	assert.Equal(t, "screen:1", store.saved.CaptureSourceID)
}

func TestWizardDefaultsToFirstSource(t *testing.T) {
	store := &memStore{patch: types.SettingsPatch{}}
	w := &wizard{
		in:      bufio.NewReader(strings.NewReader("\n\n\n\n")),
		out:     &bytes.Buffer{},
		store:   store,
		sources: staticSources{{ID: "screen:0", Name: "Display 1"}},
		capture: func() (KeyPress, error) { return KeyPress{}, errors.New("no device") },
	}

	require.NoError(t, w.run(context.Background()))
	assert.Equal(t, "screen:0", store.saved.CaptureSourceID)
}
