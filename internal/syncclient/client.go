// Package syncclient keeps a read-only mirror of the host's GlobalState and
// forwards every mutation to the Store. The mirror only changes when a
// broadcast arrives, never optimistically.
package syncclient

import (
	"context"
	"sync"

	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/dooshek/gamecoach/internal/types"
)

// Backend reaches the Store, in-process or over IPC
type Backend interface {
	GetState(ctx context.Context) (types.GlobalState, error)
	// Watch delivers every broadcast, in order, until unsubscribe is called
	Watch(ctx context.Context, fn func(types.GlobalState)) (unsubscribe func(), err error)

	SetGameState(ctx context.Context, patch types.GameStatePatch) error
	SetAnalyzing(ctx context.Context, analyzing bool) error
	SetLastAnalysis(ctx context.Context, advice *types.Advice) error
	SetSettings(ctx context.Context, patch types.SettingsPatch) error
	SetOverlayVisible(ctx context.Context, visible bool) error

	ShowOverlay(ctx context.Context) error
	HideOverlay(ctx context.Context) error
}

type Client struct {
	backend Backend

	mu        sync.Mutex
	mirror    types.GlobalState
	synced    bool
	err       error
	listeners map[uint64]func(types.GlobalState)
	next      uint64
	unwatch   func()

	notifyMu sync.Mutex
}

func New(backend Backend) *Client {
	return &Client{
		backend:   backend,
		mirror:    types.DefaultGlobalState(),
		listeners: make(map[uint64]func(types.GlobalState)),
	}
}

// Initialize fetches the snapshot, applies it and then follows broadcasts.
// On failure the mirror keeps the compiled-in defaults and Err is set.
func (c *Client) Initialize(ctx context.Context) error {
	snapshot, err := c.backend.GetState(ctx)
	if err != nil {
		c.setErr(err)
		logger.Warnf("Failed to fetch state snapshot: %v", err)
		return err
	}
	c.apply(snapshot)

	unwatch, err := c.backend.Watch(ctx, c.apply)
	if err != nil {
		c.setErr(err)
		logger.Warnf("Failed to subscribe to state updates: %v", err)
		return err
	}

	c.mu.Lock()
	c.unwatch = unwatch
	c.mu.Unlock()
	c.setErr(nil)
	return nil
}

// Close stops following broadcasts
func (c *Client) Close() {
	c.mu.Lock()
	unwatch := c.unwatch
	c.unwatch = nil
	c.mu.Unlock()
	if unwatch != nil {
		unwatch()
	}
}

// State returns a copy of the mirror
func (c *Client) State() types.GlobalState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mirror.Clone()
}

// Err returns the last snapshot or mutation failure, nil after a success
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Subscribe registers fn for every mirror replacement
func (c *Client) Subscribe(fn func(types.GlobalState)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.next
	c.next++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) SetGameState(ctx context.Context, patch types.GameStatePatch) error {
	return c.mutate(c.backend.SetGameState(ctx, patch))
}

func (c *Client) SetAnalyzing(ctx context.Context, analyzing bool) error {
	return c.mutate(c.backend.SetAnalyzing(ctx, analyzing))
}

func (c *Client) SetLastAnalysis(ctx context.Context, advice *types.Advice) error {
	return c.mutate(c.backend.SetLastAnalysis(ctx, advice))
}

func (c *Client) SetSettings(ctx context.Context, patch types.SettingsPatch) error {
	return c.mutate(c.backend.SetSettings(ctx, patch))
}

func (c *Client) SetOverlayVisible(ctx context.Context, visible bool) error {
	return c.mutate(c.backend.SetOverlayVisible(ctx, visible))
}

// ShowOverlay asks the host to create the overlay; isOverlayVisible follows
// through a later broadcast
func (c *Client) ShowOverlay(ctx context.Context) error {
	return c.mutate(c.backend.ShowOverlay(ctx))
}

func (c *Client) HideOverlay(ctx context.Context) error {
	return c.mutate(c.backend.HideOverlay(ctx))
}

func (c *Client) mutate(err error) error {
	c.setErr(err)
	if err != nil {
		logger.Warnf("State mutation failed: %v", err)
	}
	return err
}

func (c *Client) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

// apply replaces the mirror unless snapshot is older than what we hold
func (c *Client) apply(snapshot types.GlobalState) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.synced && snapshot.Version <= c.mirror.Version {
		c.mu.Unlock()
		return
	}
	c.mirror = snapshot.Clone()
	c.synced = true
	listeners := make([]func(types.GlobalState), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot.Clone())
	}
}
