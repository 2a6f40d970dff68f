package syncclient

import (
	"context"
	"sync"

	"github.com/dooshek/gamecoach/internal/state"
	"github.com/dooshek/gamecoach/internal/types"
)

// OverlayController creates and destroys the overlay surface
type OverlayController interface {
	ShowOverlay(ctx context.Context) error
	HideOverlay(ctx context.Context) error
}

// LocalBackend serves host-side components straight from the Store
type LocalBackend struct {
	store   *state.Store
	overlay OverlayController
}

func NewLocalBackend(store *state.Store, overlay OverlayController) *LocalBackend {
	return &LocalBackend{store: store, overlay: overlay}
}

func (b *LocalBackend) GetState(ctx context.Context) (types.GlobalState, error) {
	if err := ctx.Err(); err != nil {
		return types.GlobalState{}, err
	}
	return b.store.GetState(), nil
}

// Watch hands broadcasts to fn on its own goroutine so fn may call back
// into the Store. Snapshots are full, so a slow fn only sees the newest.
// Delivery continues until the returned func is called.
func (b *LocalBackend) Watch(ctx context.Context, fn func(types.GlobalState)) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		latest  types.GlobalState
		pending bool
	)
	wake := make(chan struct{}, 1)
	stop := make(chan struct{})

	offer := func(gs types.GlobalState) {
		mu.Lock()
		if !pending || gs.Version > latest.Version {
			latest = gs
			pending = true
		}
		mu.Unlock()
		select {
		case wake <- struct{}{}:
		default:
		}
	}

	unsubscribe := b.store.Subscribe(offer)
	offer(b.store.GetState())

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-wake:
				mu.Lock()
				gs, ok := latest, pending
				pending = false
				mu.Unlock()
				if ok {
					fn(gs)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			close(stop)
		})
	}, nil
}

func (b *LocalBackend) SetGameState(_ context.Context, patch types.GameStatePatch) error {
	b.store.SetGameState(patch)
	return nil
}

func (b *LocalBackend) SetAnalyzing(_ context.Context, analyzing bool) error {
	b.store.SetAnalyzing(analyzing)
	return nil
}

func (b *LocalBackend) SetLastAnalysis(_ context.Context, advice *types.Advice) error {
	b.store.SetLastAnalysis(advice)
	return nil
}

func (b *LocalBackend) SetSettings(_ context.Context, patch types.SettingsPatch) error {
	return b.store.SetSettings(patch)
}

func (b *LocalBackend) SetOverlayVisible(_ context.Context, visible bool) error {
	b.store.SetOverlayVisible(visible)
	return nil
}

func (b *LocalBackend) ShowOverlay(ctx context.Context) error {
	return b.overlay.ShowOverlay(ctx)
}

func (b *LocalBackend) HideOverlay(ctx context.Context) error {
	return b.overlay.HideOverlay(ctx)
}
