package state

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/dooshek/gamecoach/internal/types"
)

const defaultSaveTimeout = 10 * time.Second

// Listener observes every broadcast. It runs while broadcasts are
// serialized, so it must not call back into the Store synchronously.
type Listener func(types.GlobalState)

// Surface is a registered presentation surface that receives snapshots
type Surface interface {
	Alive() bool
	Send(types.GlobalState) error
}

// Persister loads and saves the settings record
type Persister interface {
	Load(ctx context.Context) (types.SettingsPatch, error)
	Save(ctx context.Context, settings types.Settings) error
}

type Option func(*Store)

// WithInitialState replaces the compiled-in defaults the Store starts from
func WithInitialState(s types.GlobalState) Option {
	return func(st *Store) {
		st.state = s.Clone()
	}
}

// WithSaveTimeout bounds each background settings save
func WithSaveTimeout(d time.Duration) Option {
	return func(st *Store) {
		st.saveTimeout = d
	}
}

// Store is the single authoritative holder of GlobalState in the host
type Store struct {
	mu           sync.Mutex
	state        types.GlobalState
	listeners    map[uint64]Listener
	nextListener uint64
	surfaces     map[types.Role]Surface

	// broadcastMu is taken before mu is released so deliveries keep the
	// order in which mutations were applied
	broadcastMu sync.Mutex

	persister   Persister
	saveTimeout time.Duration
	saveMu      sync.Mutex
	saveSeq     atomic.Uint64
	saves       sync.WaitGroup
}

func New(persister Persister, opts ...Option) *Store {
	s := &Store{
		state:       types.DefaultGlobalState(),
		listeners:   make(map[uint64]Listener),
		surfaces:    make(map[types.Role]Surface),
		persister:   persister,
		saveTimeout: defaultSaveTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetState returns a deep copy of the current state
func (s *Store) GetState() types.GlobalState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// SetGameState merges patch into gameState. A rising edge of detected
// auto-shows the overlay when it is enabled and hidden.
func (s *Store) SetGameState(patch types.GameStatePatch) {
	s.update(func(st *types.GlobalState) bool {
		wasDetected := st.GameState.Detected
		st.GameState = patch.Apply(st.GameState)
		if !wasDetected && st.GameState.Detected {
			autoShow(st, "game detected")
		}
		return true
	})
}

// SetAnalyzing replaces isAnalyzing. A rising edge auto-shows the overlay
// under the same conditions as detection.
func (s *Store) SetAnalyzing(analyzing bool) {
	s.update(func(st *types.GlobalState) bool {
		was := st.IsAnalyzing
		st.IsAnalyzing = analyzing
		if !was && analyzing {
			autoShow(st, "analysis started")
		}
		return true
	})
}

func (s *Store) SetLastAnalysis(advice *types.Advice) {
	s.update(func(st *types.GlobalState) bool {
		if advice == nil {
			st.LastAnalysis = nil
			return true
		}
		a := *advice
		st.LastAnalysis = &a
		return true
	})
}

// SetSettings merges patch into settings and schedules a background save.
// An invalid patch is rejected before anything changes.
func (s *Store) SetSettings(patch types.SettingsPatch) error {
	var mergeErr error
	s.update(func(st *types.GlobalState) bool {
		merged, err := types.MergeSettings(st.Settings, patch)
		if err != nil {
			mergeErr = err
			return false
		}
		st.Settings = merged
		s.scheduleSave(merged.Clone())
		return true
	})
	if mergeErr != nil {
		return fmt.Errorf("failed to apply settings: %w", mergeErr)
	}
	return nil
}

func (s *Store) SetOverlayVisible(visible bool) {
	s.update(func(st *types.GlobalState) bool {
		st.IsOverlayVisible = visible
		return true
	})
}

// ApplyPersisted merges settings that changed on disk. Nothing is saved
// back and nothing is broadcast when the merge changes no value.
func (s *Store) ApplyPersisted(patch types.SettingsPatch) error {
	var mergeErr error
	s.update(func(st *types.GlobalState) bool {
		merged, err := types.MergeSettings(st.Settings, patch)
		if err != nil {
			mergeErr = err
			return false
		}
		if reflect.DeepEqual(merged, st.Settings) {
			return false
		}
		st.Settings = merged
		return true
	})
	return mergeErr
}

// LoadPersisted loads the saved settings in the background and merges them
// over the running values with one broadcast. The returned channel closes
// when the load has finished, successfully or not.
func (s *Store) LoadPersisted(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if s.persister == nil {
			return
		}

		patch, err := s.persister.Load(ctx)
		if err != nil {
			logger.Warnf("Failed to load settings, keeping defaults: %v", err)
			return
		}

		s.update(func(st *types.GlobalState) bool {
			merged, err := types.MergeSettings(st.Settings, patch)
			if err != nil {
				logger.Warnf("Saved settings are invalid, keeping defaults: %v", err)
				return false
			}
			st.Settings = merged
			return true
		})
		logger.Debug("Persisted settings loaded")
	}()
	return done
}

// Subscribe registers an in-process listener
func (s *Store) Subscribe(listener Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = listener
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// RegisterSurface makes role receive every subsequent broadcast
func (s *Store) RegisterSurface(role types.Role, surface Surface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surfaces[role] = surface
	logger.Debugf("Surface registered: %s", role)
}

func (s *Store) UnregisterSurface(role types.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.surfaces, role)
	logger.Debugf("Surface unregistered: %s", role)
}

// UnregisterSurfaceIf removes role only while it is still bound to surface,
// so a late disconnect cannot evict a newer registration
func (s *Store) UnregisterSurfaceIf(role types.Role, surface Surface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.surfaces[role]; ok && current == surface {
		delete(s.surfaces, role)
		logger.Debugf("Surface unregistered: %s", role)
	}
}

// Flush waits for every scheduled settings save to finish
func (s *Store) Flush() {
	s.saves.Wait()
}

func autoShow(st *types.GlobalState, reason string) {
	if st.Settings.OverlayEnabled && !st.IsOverlayVisible {
		st.IsOverlayVisible = true
		logger.Debugf("Auto-showing overlay: %s", reason)
	}
}

// update applies mutate under the state lock and, when it reports a
// change, broadcasts the new snapshot before returning
func (s *Store) update(mutate func(st *types.GlobalState) bool) {
	s.mu.Lock()
	if !mutate(&s.state) {
		s.mu.Unlock()
		return
	}
	s.state.Version++
	snapshot := s.state.Clone()

	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	surfaces := make(map[types.Role]Surface, len(s.surfaces))
	for role, surface := range s.surfaces {
		surfaces[role] = surface
	}

	s.broadcastMu.Lock()
	s.mu.Unlock()
	defer s.broadcastMu.Unlock()

	s.broadcast(snapshot, surfaces, listeners)
}

func (s *Store) broadcast(snapshot types.GlobalState, surfaces map[types.Role]Surface, listeners []Listener) {
	for role, surface := range surfaces {
		if !surface.Alive() {
			logger.Debugf("Skipping dead surface: %s", role)
			continue
		}
		if err := surface.Send(snapshot.Clone()); err != nil {
			logger.Warnf("Failed to send state to %s surface: %v", role, err)
		}
	}

	for _, l := range listeners {
		s.notify(l, snapshot.Clone())
	}
}

func (s *Store) notify(l Listener, snapshot types.GlobalState) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("State listener panicked", fmt.Errorf("%v", r))
		}
	}()
	l(snapshot)
}

func (s *Store) scheduleSave(settings types.Settings) {
	if s.persister == nil {
		return
	}

	seq := s.saveSeq.Add(1)
	s.saves.Add(1)
	go func() {
		defer s.saves.Done()

		s.saveMu.Lock()
		defer s.saveMu.Unlock()

		// A newer save is queued behind us and carries fresher settings
		if seq != s.saveSeq.Load() {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
		defer cancel()
		if err := s.persister.Save(ctx, settings); err != nil {
			logger.Error("Failed to persist settings", err)
		}
	}()
}
