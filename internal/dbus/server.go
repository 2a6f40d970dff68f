package dbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dooshek/gamecoach/internal/detect"
	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/dooshek/gamecoach/internal/orchestrator"
	"github.com/dooshek/gamecoach/internal/state"
	"github.com/dooshek/gamecoach/internal/types"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

const (
	dbusServiceName = "com.dooshek.gamecoach"
	dbusObjectPath  = "/com/dooshek/gamecoach/Coach"
	dbusInterface   = "com.dooshek.gamecoach.Coach"

	overlayCallTimeout = 10 * time.Second
)

// StateStore is the read side of the Store
type StateStore interface {
	GetState() types.GlobalState
	Subscribe(listener state.Listener) func()
}

// AnalysisController is the orchestrator's control surface
type AnalysisController interface {
	Enable()
	Disable()
	Toggle() bool
	Status() orchestrator.Status
	History() []types.Advice
}

// OverlayController creates and destroys the overlay
type OverlayController interface {
	ShowOverlay(ctx context.Context) error
	HideOverlay(ctx context.Context) error
}

// StatsSource exposes persisted analysis statistics
type StatsSource interface {
	GetStatsJSON() (string, error)
}

// GameDetector reports the latest detection pass
type GameDetector interface {
	Last() detect.Result
}

// Status is the GetStatus payload
type Status struct {
	Analysis       orchestrator.Status `json:"analysis"`
	Game           detect.Result       `json:"game"`
	OverlayVisible bool                `json:"overlayVisible"`
	IsAnalyzing    bool                `json:"isAnalyzing"`
	Version        uint64              `json:"version"`
}

// Server implements the D-Bus control API of the host
type Server struct {
	conn     *dbus.Conn
	store    StateStore
	analysis AnalysisController
	overlay  OverlayController
	stats    StatsSource
	detector GameDetector

	mu          sync.Mutex
	unsubscribe func()
	signals     chan signal
	done        chan struct{}
}

type signal struct {
	name string
	args []interface{}
}

func NewServer(store StateStore, analysis AnalysisController, overlay OverlayController, stats StatsSource, detector GameDetector) *Server {
	return &Server{
		store:    store,
		analysis: analysis,
		overlay:  overlay,
		stats:    stats,
		detector: detector,
		signals:  make(chan signal, 64),
		done:     make(chan struct{}),
	}
}

// Start connects to the session bus, exports the object and starts
// forwarding state changes as signals
func (s *Server) Start() error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	reply, err := conn.RequestName(dbusServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return fmt.Errorf("name already taken")
	}

	if err := conn.Export(s, dbusObjectPath, dbusInterface); err != nil {
		conn.Close()
		return fmt.Errorf("failed to export object: %w", err)
	}

	err = conn.Export(introspect.NewIntrospectable(introspection()), dbusObjectPath, "org.freedesktop.DBus.Introspectable")
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.watch()

	logger.Infof("D-Bus service started: %s", dbusServiceName)
	return nil
}

// watch turns Store broadcasts into queued signals
func (s *Server) watch() {
	prev := s.store.GetState()
	var prevMu sync.Mutex

	unsubscribe := s.store.Subscribe(func(next types.GlobalState) {
		prevMu.Lock()
		changes := diffSignals(prev, next)
		prev = next
		prevMu.Unlock()

		for _, sig := range changes {
			select {
			case s.signals <- sig:
			default:
				logger.Warnf("D-Bus: signal queue full, dropping %s", sig.name)
			}
		}
	})

	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-s.done:
				return
			case sig := <-s.signals:
				s.emitSignal(sig.name, sig.args...)
			}
		}
	}()
}

// diffSignals lists the signals implied by a state transition
func diffSignals(prev, next types.GlobalState) []signal {
	var out []signal
	if next.LastAnalysis != nil && (prev.LastAnalysis == nil || prev.LastAnalysis.ID != next.LastAnalysis.ID) {
		a := next.LastAnalysis
		out = append(out, signal{name: "AdviceReady", args: []interface{}{a.Advice, a.Confidence, a.Provider}})
	}
	if prev.IsOverlayVisible != next.IsOverlayVisible {
		out = append(out, signal{name: "OverlayVisibilityChanged", args: []interface{}{next.IsOverlayVisible}})
	}
	if prev.IsAnalyzing != next.IsAnalyzing {
		out = append(out, signal{name: "AnalysisStateChanged", args: []interface{}{next.IsAnalyzing}})
	}
	return out
}

// Stop stops the D-Bus server
func (s *Server) Stop() {
	s.mu.Lock()
	unsubscribe, conn := s.unsubscribe, s.conn
	s.unsubscribe, s.conn = nil, nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
		close(s.done)
	}
	if conn != nil {
		conn.Close()
		logger.Info("D-Bus service stopped")
	}
}

func marshal(v any) (string, *dbus.Error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return string(data), nil
}

// GetState returns the full state as JSON (D-Bus method)
func (s *Server) GetState() (string, *dbus.Error) {
	return marshal(s.store.GetState())
}

// GetStatus returns a compact status document as JSON (D-Bus method)
func (s *Server) GetStatus() (string, *dbus.Error) {
	st := s.store.GetState()
	status := Status{
		Analysis:       s.analysis.Status(),
		OverlayVisible: st.IsOverlayVisible,
		IsAnalyzing:    st.IsAnalyzing,
		Version:        st.Version,
	}
	if s.detector != nil {
		status.Game = s.detector.Last()
	}
	return marshal(status)
}

// GetHistory returns recent advice, newest first, as JSON (D-Bus method)
func (s *Server) GetHistory() (string, *dbus.Error) {
	return marshal(s.analysis.History())
}

// GetStats returns analysis statistics as JSON (D-Bus method)
func (s *Server) GetStats() (string, *dbus.Error) {
	if s.stats == nil {
		return "{}", nil
	}
	out, err := s.stats.GetStatsJSON()
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return out, nil
}

func (s *Server) ShowOverlay() *dbus.Error {
	logger.Debug("D-Bus: ShowOverlay called")
	ctx, cancel := context.WithTimeout(context.Background(), overlayCallTimeout)
	defer cancel()
	if err := s.overlay.ShowOverlay(ctx); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

func (s *Server) HideOverlay() *dbus.Error {
	logger.Debug("D-Bus: HideOverlay called")
	ctx, cancel := context.WithTimeout(context.Background(), overlayCallTimeout)
	defer cancel()
	if err := s.overlay.HideOverlay(ctx); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

func (s *Server) StartAnalysis() *dbus.Error {
	logger.Debug("D-Bus: StartAnalysis called")
	s.analysis.Enable()
	return nil
}

func (s *Server) StopAnalysis() *dbus.Error {
	logger.Debug("D-Bus: StopAnalysis called")
	s.analysis.Disable()
	return nil
}

// ToggleAnalysis flips the analysis gate and returns the new value (D-Bus method)
func (s *Server) ToggleAnalysis() (bool, *dbus.Error) {
	logger.Debug("D-Bus: ToggleAnalysis called")
	return s.analysis.Toggle(), nil
}

func (s *Server) emitSignal(name string, args ...interface{}) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		logger.Warnf("D-Bus: Cannot emit signal %s - no connection", name)
		return
	}

	if err := conn.Emit(dbus.ObjectPath(dbusObjectPath), dbusInterface+"."+name, args...); err != nil {
		logger.Errorf("D-Bus: Failed to emit signal %s", err, name)
	} else {
		logger.Debugf("D-Bus: Emitted signal: %s", name)
	}
}

func introspection() *introspect.Node {
	jsonOut := func(name string) introspect.Method {
		return introspect.Method{
			Name: name,
			Args: []introspect.Arg{{Name: "json", Type: "s", Direction: "out"}},
		}
	}

	return &introspect.Node{
		Name: dbusObjectPath,
		Interfaces: []introspect.Interface{{
			Name: dbusInterface,
			Methods: []introspect.Method{
				jsonOut("GetState"),
				jsonOut("GetStatus"),
				jsonOut("GetHistory"),
				jsonOut("GetStats"),
				{Name: "ShowOverlay"},
				{Name: "HideOverlay"},
				{Name: "StartAnalysis"},
				{Name: "StopAnalysis"},
				{
					Name: "ToggleAnalysis",
					Args: []introspect.Arg{{Name: "enabled", Type: "b", Direction: "out"}},
				},
			},
			Signals: []introspect.Signal{
				{
					Name: "AdviceReady",
					Args: []introspect.Arg{
						{Name: "advice", Type: "s"},
						{Name: "confidence", Type: "d"},
						{Name: "provider", Type: "s"},
					},
				},
				{
					Name: "OverlayVisibilityChanged",
					Args: []introspect.Arg{{Name: "visible", Type: "b"}},
				},
				{
					Name: "AnalysisStateChanged",
					Args: []introspect.Arg{{Name: "analyzing", Type: "b"}},
				},
			},
		}},
	}
}
