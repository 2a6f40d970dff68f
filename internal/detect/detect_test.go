package detect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dooshek/gamecoach/internal/state"
	"github.com/dooshek/gamecoach/internal/syncclient"
	"github.com/dooshek/gamecoach/internal/types"
	"github.com/dooshek/gamecoach/internal/windowdetect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWindows struct {
	mu      sync.Mutex
	windows []windowdetect.WindowInfo
	err     error
}

func (f *fakeWindows) set(err error, windows ...windowdetect.WindowInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows, f.err = windows, err
}

func (f *fakeWindows) ListWindows(context.Context) ([]windowdetect.WindowInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.windows, f.err
}

// countingClient counts writes on top of a real mirror
type countingClient struct {
	*syncclient.Client
	mu     sync.Mutex
	writes int
}

func (c *countingClient) SetGameState(ctx context.Context, patch types.GameStatePatch) error {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.Client.SetGameState(ctx, patch)
}

func (c *countingClient) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

func TestMatch(t *testing.T) {
	game := types.DefaultSettings().Game

	r := Match(game, []windowdetect.WindowInfo{
		{Title: "Terminal", AppName: "kitty"},
		{Title: "Ravenswatch", AppName: "ravenswatch.exe"},
	})
	require.True(t, r.Running)
	assert.Equal(t, "Ravenswatch", r.Window.Title)
	assert.Equal(t, 1.0, r.Confidence)

	r = Match(game, []windowdetect.WindowInfo{{Title: "Steam - Ravenswatch"}})
	assert.True(t, r.Running)
	assert.Equal(t, 0.9, r.Confidence)

	r = Match(game, []windowdetect.WindowInfo{{Title: "Firefox"}})
	assert.False(t, r.Running)
	assert.Nil(t, r.Window)
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, 1.0, Confidence("Ravenswatch", "ravenswatch"))
	assert.Equal(t, 0.9, Confidence("Ravenswatch", "Ravenswatch - Chapter 2"))
	assert.Equal(t, 0.6, Confidence("Ravenswatch", "Raven Launcher"))
	assert.Equal(t, 0.3, Confidence("Ravenswatch", "Passtech Games"))
}

func TestDetectWritesOnlyOnChange(t *testing.T) {
	store := state.New(nil)
	inner := syncclient.New(syncclient.NewLocalBackend(store, nil))
	require.NoError(t, inner.Initialize(context.Background()))
	defer inner.Close()
	client := &countingClient{Client: inner}

	windows := &fakeWindows{}
	d := New(windows, client)
	ctx := context.Background()

	d.Detect(ctx)
	assert.Equal(t, 0, client.Writes())

	windows.set(nil, windowdetect.WindowInfo{Title: "Ravenswatch"})
	d.Detect(ctx)
	assert.Equal(t, 1, client.Writes())
	assert.True(t, store.GetState().GameState.Detected)
	// the rising edge auto-shows the overlay
	assert.True(t, store.GetState().IsOverlayVisible)

	require.Eventually(t, func() bool { return inner.State().GameState.Detected }, time.Second, 5*time.Millisecond)
	d.Detect(ctx)
	assert.Equal(t, 1, client.Writes())

	windows.set(errors.New("no display"))
	result := d.Detect(ctx)
	assert.Equal(t, methodError, result.Method)
	assert.Equal(t, 2, client.Writes())
	assert.False(t, store.GetState().GameState.Detected)
	assert.Equal(t, result, d.Last())
}
