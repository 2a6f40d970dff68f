package surface

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/dooshek/gamecoach/internal/state"
	"github.com/dooshek/gamecoach/internal/types"
)

// ErrShuttingDown is returned by ShowOverlay once Shutdown has started
var ErrShuttingDown = errors.New("surface manager is shutting down")

// Handle controls one live presentation surface
type Handle interface {
	ID() string
	Alive() bool
	Send(types.GlobalState) error
	// Ready closes once the surface can receive content
	Ready() <-chan struct{}
	// Done closes once the surface is gone for any reason
	Done() <-chan struct{}
	Raise() error
	SetBounds(types.Bounds) error
	Close() error
}

// Factory creates surfaces; the returned handle is not ready yet
type Factory interface {
	Create(ctx context.Context, role types.Role, bounds types.Bounds) (Handle, error)
}

// Display reports the usable area overlays are placed in
type Display interface {
	WorkArea() types.Bounds
}

// StateStore is the part of the Store the manager drives
type StateStore interface {
	GetState() types.GlobalState
	Subscribe(listener state.Listener) func()
	RegisterSurface(role types.Role, surface state.Surface)
	UnregisterSurfaceIf(role types.Role, surface state.Surface)
	SetOverlayVisible(visible bool)
}

type Phase int

const (
	PhaseAbsent Phase = iota
	PhaseCreating
	PhaseVisible
	PhaseClosing
)

func (p Phase) String() string {
	switch p {
	case PhaseCreating:
		return "creating"
	case PhaseVisible:
		return "visible"
	case PhaseClosing:
		return "closing"
	default:
		return "absent"
	}
}

type entry struct {
	handle   Handle
	phase    Phase
	bounds   types.Bounds
	finished bool
	gone     chan struct{}
}

// Manager owns the surface registry and keeps the overlay in step with
// isOverlayVisible and the overlay geometry settings
type Manager struct {
	store   StateStore
	factory Factory
	display Display

	mu      sync.Mutex
	entries map[types.Role]*entry
	closed  bool
	wg      sync.WaitGroup
	wake    chan struct{}
}

func NewManager(store StateStore, factory Factory, display Display) *Manager {
	return &Manager{
		store:   store,
		factory: factory,
		display: display,
		entries: make(map[types.Role]*entry),
		wake:    make(chan struct{}, 1),
	}
}

// Run follows the Store until ctx is cancelled. Reconciliation happens on
// this goroutine so a listener never blocks a broadcast.
func (m *Manager) Run(ctx context.Context) error {
	unsubscribe := m.store.Subscribe(func(types.GlobalState) {
		select {
		case m.wake <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	m.reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.wake:
			m.reconcile(ctx)
		}
	}
}

// Phase reports the lifecycle phase of role
func (m *Manager) Phase(role types.Role) Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[role]; ok {
		return e.phase
	}
	return PhaseAbsent
}

// ShowOverlay creates the overlay, or raises and repositions the existing one
func (m *Manager) ShowOverlay(ctx context.Context) error {
	return m.show(ctx, types.RoleOverlay)
}

// HideOverlay closes the overlay and waits until it is gone
func (m *Manager) HideOverlay(ctx context.Context) error {
	return m.hide(ctx, types.RoleOverlay)
}

func (m *Manager) overlayBounds(settings types.Settings) types.Bounds {
	return Place(m.display.WorkArea(), settings.Overlay.Dimensions(), settings.Overlay.Position)
}

func (m *Manager) show(ctx context.Context, role types.Role) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrShuttingDown
	}
	bounds := m.overlayBounds(m.store.GetState().Settings)

	if e, ok := m.entries[role]; ok && e.phase != PhaseClosing {
		handle, phase := e.handle, e.phase
		moved := e.bounds != bounds
		e.bounds = bounds
		m.mu.Unlock()

		if handle == nil {
			// still being created, the watcher applies the new bounds on ready
			return nil
		}
		if moved {
			logger.Debugf("Repositioning %s surface to %+v", role, bounds)
			if err := handle.SetBounds(bounds); err != nil {
				logger.Warnf("Failed to reposition %s surface: %v", role, err)
			}
		}
		if phase == PhaseVisible {
			if err := handle.Raise(); err != nil {
				logger.Warnf("Failed to raise %s surface: %v", role, err)
			}
		}
		return nil
	}

	e := &entry{phase: PhaseCreating, bounds: bounds, gone: make(chan struct{})}
	m.entries[role] = e
	m.wg.Add(1)
	m.mu.Unlock()

	logger.Infof("Creating %s surface", role)
	handle, err := m.factory.Create(ctx, role, bounds)
	if err != nil {
		m.mu.Lock()
		current := m.entries[role] == e
		if current {
			delete(m.entries, role)
		}
		m.mu.Unlock()
		m.wg.Done()

		logger.Error(fmt.Sprintf("Failed to create %s surface", role), err)
		if current {
			m.store.SetOverlayVisible(false)
		}
		return fmt.Errorf("failed to create %s surface: %w", role, err)
	}

	m.mu.Lock()
	e.handle = handle
	closing := e.phase == PhaseClosing
	m.mu.Unlock()

	go m.watch(role, e, handle, bounds)
	if closing {
		if err := handle.Close(); err != nil {
			logger.Warnf("Failed to close %s surface: %v", role, err)
		}
	}
	return nil
}

// watch drives one handle from Creating to Absent
func (m *Manager) watch(role types.Role, e *entry, handle Handle, created types.Bounds) {
	defer m.wg.Done()

	select {
	case <-handle.Ready():
		m.activate(role, e, handle, created)
	case <-handle.Done():
	}

	<-handle.Done()
	m.finish(role, e, handle)
}

func (m *Manager) activate(role types.Role, e *entry, handle Handle, created types.Bounds) {
	m.mu.Lock()
	if e.phase != PhaseCreating || m.entries[role] != e {
		m.mu.Unlock()
		return
	}
	bounds := e.bounds
	m.mu.Unlock()

	if bounds != created {
		if err := handle.SetBounds(bounds); err != nil {
			logger.Warnf("Failed to reposition %s surface: %v", role, err)
		}
	}

	m.store.RegisterSurface(role, handle)
	if err := handle.Raise(); err != nil {
		logger.Warnf("Failed to raise %s surface: %v", role, err)
	}
	m.store.SetOverlayVisible(true)

	m.mu.Lock()
	if e.phase == PhaseCreating {
		e.phase = PhaseVisible
	}
	m.mu.Unlock()
	logger.Infof("%s surface %s is visible", role, handle.ID())
}

// finish runs once per entry: unregister, clear the flag, then forget the
// handle. Concurrent callers return only after the first one is through.
func (m *Manager) finish(role types.Role, e *entry, handle Handle) {
	m.mu.Lock()
	if e.finished {
		m.mu.Unlock()
		<-e.gone
		return
	}
	e.finished = true
	e.phase = PhaseClosing
	current := m.entries[role] == e
	m.mu.Unlock()

	m.store.UnregisterSurfaceIf(role, handle)
	if current {
		m.store.SetOverlayVisible(false)
	}

	m.mu.Lock()
	if m.entries[role] == e {
		delete(m.entries, role)
	}
	m.mu.Unlock()
	close(e.gone)
	logger.Infof("%s surface %s closed", role, handle.ID())
}

func (m *Manager) hide(ctx context.Context, role types.Role) error {
	m.mu.Lock()
	e, ok := m.entries[role]
	if !ok || e.phase == PhaseClosing {
		m.mu.Unlock()
		return nil
	}
	e.phase = PhaseClosing
	handle := e.handle
	m.mu.Unlock()

	if handle == nil {
		// show() closes the handle as soon as the factory returns it
		return nil
	}

	logger.Infof("Closing %s surface", role)
	if err := handle.Close(); err != nil {
		logger.Warnf("Failed to close %s surface: %v", role, err)
	}

	select {
	case <-handle.Done():
		m.finish(role, e, handle)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reconcile compares the live registry with the current state
func (m *Manager) reconcile(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	st := m.store.GetState()
	e, ok := m.entries[types.RoleOverlay]
	phase := PhaseAbsent
	if ok {
		phase = e.phase
	}
	m.mu.Unlock()

	switch {
	case st.IsOverlayVisible && !ok:
		if err := m.ShowOverlay(ctx); err != nil {
			logger.Debugf("Overlay show from state failed: %v", err)
		}
	case !st.IsOverlayVisible && phase == PhaseVisible:
		if err := m.HideOverlay(ctx); err != nil {
			logger.Debugf("Overlay hide from state failed: %v", err)
		}
	case phase == PhaseVisible:
		m.reposition(types.RoleOverlay, m.overlayBounds(st.Settings))
	}
}

func (m *Manager) reposition(role types.Role, bounds types.Bounds) {
	m.mu.Lock()
	e, ok := m.entries[role]
	if !ok || e.phase != PhaseVisible || e.bounds == bounds {
		m.mu.Unlock()
		return
	}
	e.bounds = bounds
	handle := e.handle
	m.mu.Unlock()

	logger.Debugf("Overlay settings changed, moving to %+v", bounds)
	if err := handle.SetBounds(bounds); err != nil {
		logger.Warnf("Failed to reposition %s surface: %v", role, err)
	}
}

// Shutdown closes every surface and waits for them to go away
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	roles := make([]types.Role, 0, len(m.entries))
	for role := range m.entries {
		roles = append(roles, role)
	}
	m.mu.Unlock()

	for _, role := range roles {
		if err := m.hide(ctx, role); err != nil {
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
