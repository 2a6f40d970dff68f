package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/dooshek/gamecoach/internal/state"
	"github.com/dooshek/gamecoach/internal/surface"
	"github.com/dooshek/gamecoach/internal/types"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// StateStore is the Store surface the server exposes to peers
type StateStore interface {
	GetState() types.GlobalState
	Subscribe(listener state.Listener) func()
	SetGameState(patch types.GameStatePatch)
	SetAnalyzing(analyzing bool)
	SetLastAnalysis(advice *types.Advice)
	SetSettings(patch types.SettingsPatch) error
	SetOverlayVisible(visible bool)
	RegisterSurface(role types.Role, s state.Surface)
	UnregisterSurfaceIf(role types.Role, s state.Surface)
}

// OverlayController creates and destroys the overlay
type OverlayController interface {
	ShowOverlay(ctx context.Context) error
	HideOverlay(ctx context.Context) error
}

// AnalysisController is the enable gate of the orchestrator
type AnalysisController interface {
	Enable()
	Disable()
}

// SourceLister enumerates capture sources
type SourceLister interface {
	ListSources(ctx context.Context) ([]types.Source, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Only local processes can reach the unix socket
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the host end of the message channel. It also launches surface
// processes and hands out their handles.
type Server struct {
	store    StateStore
	launcher Launcher

	mu       sync.Mutex
	overlay  OverlayController
	analysis AnalysisController
	sources  SourceLister
	primary  *peerSurface
	pending  map[string]*surfaceHandle
	peers    map[string]*peer

	httpServer *http.Server
}

var _ surface.Factory = (*Server)(nil)

func NewServer(store StateStore, launcher Launcher) *Server {
	return &Server{
		store:    store,
		launcher: launcher,
		pending:  make(map[string]*surfaceHandle),
		peers:    make(map[string]*peer),
	}
}

func (s *Server) SetOverlayController(c OverlayController) {
	s.mu.Lock()
	s.overlay = c
	s.mu.Unlock()
}

func (s *Server) SetAnalysisController(c AnalysisController) {
	s.mu.Lock()
	s.analysis = c
	s.mu.Unlock()
}

func (s *Server) SetSourceLister(l SourceLister) {
	s.mu.Lock()
	s.sources = l
	s.mu.Unlock()
}

// Handler serves /health and /ws
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// ListenAndServe serves on a unix socket until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, socketPath string) error {
	if _, err := os.Stat(socketPath); err == nil {
		if err := os.Remove(socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.httpServer = &http.Server{Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		s.closePeers()
		_ = s.httpServer.Close()
	}()

	logger.Infof("IPC listening on %s", socketPath)
	err = s.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": s.store.GetState().Version,
	})
}

// Create launches a surface process. The handle turns ready once the
// process attaches and reports surface.ready, and done when the process
// exits or its connection drops.
func (s *Server) Create(ctx context.Context, role types.Role, bounds types.Bounds) (surface.Handle, error) {
	id := uuid.NewString()
	h := newSurfaceHandle(id, role)

	s.mu.Lock()
	s.pending[id] = h
	s.mu.Unlock()

	proc, err := s.launcher.Launch(ctx, role, id, bounds)
	if err != nil {
		s.forget(id)
		return nil, err
	}
	h.proc = proc

	go func() {
		if err := proc.Wait(); err != nil {
			logger.Debugf("Surface %s exited: %v", id, err)
		}
		h.markDone()
		s.forget(id)
	}()
	return h, nil
}

func (s *Server) forget(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	p := newPeer(uuid.NewString(), conn)
	s.mu.Lock()
	s.peers[p.id] = p
	s.mu.Unlock()

	go p.writeLoop()
	s.serve(r.Context(), p)
}

// connState is what one connection has attached or subscribed to
type connState struct {
	handle  *surfaceHandle
	primary *peerSurface
	unwatch func()
}

func (s *Server) serve(ctx context.Context, p *peer) {
	cs := &connState{}
	defer func() {
		if cs.unwatch != nil {
			cs.unwatch()
		}
		if cs.primary != nil {
			s.mu.Lock()
			if s.primary == cs.primary {
				s.primary = nil
			}
			s.mu.Unlock()
			s.store.UnregisterSurfaceIf(types.RolePrimary, cs.primary)
		}
		if cs.handle != nil {
			cs.handle.markDone()
			cs.handle.kill()
		}
		s.mu.Lock()
		delete(s.peers, p.id)
		s.mu.Unlock()
		p.close()
		logger.Debugf("Peer %s disconnected", p.id)
	}()

	for {
		var msg Message
		if err := p.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debugf("Peer %s read failed: %v", p.id, err)
			}
			return
		}
		if msg.Type != TypeRequest {
			continue
		}

		payload, err := s.dispatch(ctx, p, cs, msg)
		resp, encErr := newMessage(TypeResponse, msg.ID, msg.Op, payload)
		if encErr != nil {
			err = encErr
		}
		if err != nil {
			resp.Error = err.Error()
			logger.Debugf("Request %s failed: %v", msg.Op, err)
		}
		if err := p.send(resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, p *peer, cs *connState, msg Message) (any, error) {
	switch msg.Op {
	case OpStateGet:
		return s.store.GetState(), nil

	case OpStateSubscribe:
		// attached surfaces already receive broadcasts through the registry
		if cs.handle == nil && cs.primary == nil && cs.unwatch == nil {
			cs.unwatch = s.store.Subscribe(func(gs types.GlobalState) {
				if push, err := newPush(PushStateUpdated, gs); err == nil {
					_ = p.send(push)
				}
			})
		}
		return s.store.GetState(), nil

	case OpSetGameState:
		var patch types.GameStatePatch
		if err := msg.Decode(&patch); err != nil {
			return nil, err
		}
		s.store.SetGameState(patch)
		return nil, nil

	case OpSetAnalyzing:
		var v boolPayload
		if err := msg.Decode(&v); err != nil {
			return nil, err
		}
		s.store.SetAnalyzing(v.Value)
		return nil, nil

	case OpSetLastAnalysis:
		var v advicePayload
		if err := msg.Decode(&v); err != nil {
			return nil, err
		}
		s.store.SetLastAnalysis(v.Advice)
		return nil, nil

	case OpSetSettings:
		var patch types.SettingsPatch
		if err := msg.Decode(&patch); err != nil {
			return nil, err
		}
		return nil, s.store.SetSettings(patch)

	case OpSetOverlayVisible:
		var v boolPayload
		if err := msg.Decode(&v); err != nil {
			return nil, err
		}
		s.store.SetOverlayVisible(v.Value)
		return nil, nil

	case OpOverlayShow, OpOverlayHide:
		s.mu.Lock()
		overlay := s.overlay
		s.mu.Unlock()
		if overlay == nil {
			return nil, ErrUnavailable
		}
		if msg.Op == OpOverlayShow {
			return nil, overlay.ShowOverlay(ctx)
		}
		return nil, overlay.HideOverlay(ctx)

	case OpAnalysisStart, OpAnalysisStop:
		s.mu.Lock()
		analysis := s.analysis
		s.mu.Unlock()
		if analysis == nil {
			return nil, ErrUnavailable
		}
		if msg.Op == OpAnalysisStart {
			analysis.Enable()
		} else {
			analysis.Disable()
		}
		return nil, nil

	case OpSourcesList:
		s.mu.Lock()
		sources := s.sources
		s.mu.Unlock()
		if sources == nil {
			return nil, ErrUnavailable
		}
		return sources.ListSources(ctx)

	case OpSurfaceAttach:
		var v AttachPayload
		if err := msg.Decode(&v); err != nil {
			return nil, err
		}
		return nil, s.attach(p, cs, v)

	case OpSurfaceReady:
		if cs.handle == nil {
			return nil, ErrUnknownSurface
		}
		cs.handle.markReady()
		return nil, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownOp, msg.Op)
}

func (s *Server) attach(p *peer, cs *connState, v AttachPayload) error {
	if cs.handle != nil || cs.primary != nil {
		return fmt.Errorf("connection already attached")
	}
	// attached surfaces get broadcasts through the registry instead
	stopWatching := func() {
		if cs.unwatch != nil {
			cs.unwatch()
			cs.unwatch = nil
		}
	}

	switch v.Role {
	case types.RolePrimary:
		ps := &peerSurface{p: p}
		s.mu.Lock()
		if s.primary != nil && s.primary.Alive() {
			s.mu.Unlock()
			return ErrPrimaryAttached
		}
		s.primary = ps
		s.mu.Unlock()
		stopWatching()
		cs.primary = ps
		s.store.RegisterSurface(types.RolePrimary, ps)
		logger.Info("Primary surface attached")
		return nil

	case types.RoleOverlay:
		s.mu.Lock()
		h, ok := s.pending[v.ID]
		s.mu.Unlock()
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSurface, v.ID)
		}
		stopWatching()
		h.attach(p)
		cs.handle = h
		logger.Debugf("Overlay surface %s attached", v.ID)
		return nil
	}
	return fmt.Errorf("unknown surface role %q", v.Role)
}

func (s *Server) closePeers() {
	s.mu.Lock()
	peers := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()
	for _, p := range peers {
		p.close()
	}
}
