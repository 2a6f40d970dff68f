package syncclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dooshek/gamecoach/internal/state"
	"github.com/dooshek/gamecoach/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOverlay struct {
	mu    sync.Mutex
	shows int
	hides int
	err   error
}

func (f *fakeOverlay) ShowOverlay(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shows++
	return f.err
}

func (f *fakeOverlay) HideOverlay(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hides++
	return f.err
}

// failingBackend rejects everything
type failingBackend struct{ *LocalBackend }

var errOffline = errors.New("host offline")

func (failingBackend) GetState(context.Context) (types.GlobalState, error) {
	return types.GlobalState{}, errOffline
}

func (failingBackend) SetAnalyzing(context.Context, bool) error { return errOffline }

func newLocalClient(t *testing.T) (*Client, *state.Store, *fakeOverlay) {
	t.Helper()
	store := state.New(nil)
	overlay := &fakeOverlay{}
	c := New(NewLocalBackend(store, overlay))
	require.NoError(t, c.Initialize(context.Background()))
	t.Cleanup(c.Close)
	return c, store, overlay
}

func TestInitializeAppliesSnapshot(t *testing.T) {
	store := state.New(nil)
	store.SetAnalyzing(true)

	c := New(NewLocalBackend(store, &fakeOverlay{}))
	require.NoError(t, c.Initialize(context.Background()))
	defer c.Close()

	assert.True(t, c.State().IsAnalyzing)
	assert.NoError(t, c.Err())
}

func TestInitializeFailureKeepsDefaults(t *testing.T) {
	c := New(failingBackend{})
	err := c.Initialize(context.Background())

	assert.ErrorIs(t, err, errOffline)
	assert.ErrorIs(t, c.Err(), errOffline)
	assert.Equal(t, types.DefaultGlobalState(), c.State())
	assert.True(t, c.State().Settings.OverlayEnabled)
}

func TestMutationWaitsForBroadcast(t *testing.T) {
	c, store, _ := newLocalClient(t)

	require.NoError(t, c.SetSettings(context.Background(), types.SettingsPatch{"adviceFrequencyMs": 1500}))
	assert.Equal(t, 1500, store.GetState().Settings.AdviceFrequencyMs)

	require.Eventually(t, func() bool {
		return c.State().Settings.AdviceFrequencyMs == 1500
	}, time.Second, 5*time.Millisecond)
}

func TestMirrorSeesDerivedAutoShow(t *testing.T) {
	c, _, _ := newLocalClient(t)

	detected := true
	require.NoError(t, c.SetGameState(context.Background(), types.GameStatePatch{Detected: &detected}))

	require.Eventually(t, func() bool {
		st := c.State()
		return st.GameState.Detected && st.IsOverlayVisible
	}, time.Second, 5*time.Millisecond)
}

func TestMutationFailureSetsErr(t *testing.T) {
	store := state.New(nil)
	c := New(failingBackend{LocalBackend: NewLocalBackend(store, &fakeOverlay{})})

	err := c.SetAnalyzing(context.Background(), true)
	assert.ErrorIs(t, err, errOffline)
	assert.ErrorIs(t, c.Err(), errOffline)
	assert.False(t, c.State().IsAnalyzing)
	assert.False(t, store.GetState().IsAnalyzing)

	require.NoError(t, c.SetOverlayVisible(context.Background(), true))
	assert.NoError(t, c.Err())
}

func TestStaleSnapshotIgnored(t *testing.T) {
	c := New(failingBackend{})

	newer := types.DefaultGlobalState()
	newer.Version = 5
	newer.IsAnalyzing = true
	c.apply(newer)

	older := types.DefaultGlobalState()
	older.Version = 4
	c.apply(older)

	assert.True(t, c.State().IsAnalyzing)
	assert.Equal(t, uint64(5), c.State().Version)
}

func TestFirstSnapshotAcceptedAtVersionZero(t *testing.T) {
	c := New(failingBackend{})
	gs := types.DefaultGlobalState()
	gs.IsOverlayVisible = true
	c.apply(gs)
	assert.True(t, c.State().IsOverlayVisible)
}

func TestOverlayCommandsRouteToController(t *testing.T) {
	c, store, overlay := newLocalClient(t)
	ctx := context.Background()

	require.NoError(t, c.ShowOverlay(ctx))
	require.NoError(t, c.HideOverlay(ctx))

	overlay.mu.Lock()
	assert.Equal(t, 1, overlay.shows)
	assert.Equal(t, 1, overlay.hides)
	overlay.mu.Unlock()
	assert.False(t, store.GetState().IsOverlayVisible)
}

func TestSubscribeReceivesReplacements(t *testing.T) {
	c, store, _ := newLocalClient(t)

	got := make(chan types.GlobalState, 8)
	unsub := c.Subscribe(func(gs types.GlobalState) { got <- gs })
	defer unsub()

	store.SetAnalyzing(true)
	select {
	case gs := <-got:
		assert.True(t, gs.IsAnalyzing)
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}
}

func TestListenerMayMutateStore(t *testing.T) {
	c, store, _ := newLocalClient(t)
	ctx := context.Background()

	var once sync.Once
	c.Subscribe(func(gs types.GlobalState) {
		if gs.IsAnalyzing {
			once.Do(func() { _ = c.SetOverlayVisible(ctx, false) })
		}
	})

	store.SetAnalyzing(true)
	require.Eventually(t, func() bool {
		st := store.GetState()
		return st.IsAnalyzing && !st.IsOverlayVisible
	}, time.Second, 5*time.Millisecond)
}

func TestConvergenceAcrossClients(t *testing.T) {
	store := state.New(nil)
	a := New(NewLocalBackend(store, &fakeOverlay{}))
	b := New(NewLocalBackend(store, &fakeOverlay{}))
	require.NoError(t, a.Initialize(context.Background()))
	require.NoError(t, b.Initialize(context.Background()))
	defer a.Close()
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = a.SetSettings(context.Background(), types.SettingsPatch{"adviceFrequencyMs": 1000 + i})
		}(i)
		go func(i int) {
			defer wg.Done()
			_ = b.SetSettings(context.Background(), types.SettingsPatch{"adviceFrequencyMs": 2000 + i})
		}(i)
	}
	wg.Wait()

	want := store.GetState()
	require.Eventually(t, func() bool {
		return a.State().Version == want.Version && b.State().Version == want.Version
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, want.Settings.AdviceFrequencyMs, a.State().Settings.AdviceFrequencyMs)
	assert.Equal(t, want.Settings.AdviceFrequencyMs, b.State().Settings.AdviceFrequencyMs)
}
