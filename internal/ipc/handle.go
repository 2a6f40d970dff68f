package ipc

import (
	"sync"
	"time"

	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/dooshek/gamecoach/internal/types"
)

const closeGrace = 3 * time.Second

// surfaceHandle is the host's view of a launched surface process
type surfaceHandle struct {
	id   string
	role types.Role
	proc Process

	mu   sync.Mutex
	peer *peer

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
}

func newSurfaceHandle(id string, role types.Role) *surfaceHandle {
	return &surfaceHandle{
		id:    id,
		role:  role,
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (h *surfaceHandle) ID() string { return h.id }

func (h *surfaceHandle) Ready() <-chan struct{} { return h.ready }

func (h *surfaceHandle) Done() <-chan struct{} { return h.done }

func (h *surfaceHandle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
	}
	p := h.currentPeer()
	return p != nil && p.alive()
}

func (h *surfaceHandle) Send(gs types.GlobalState) error {
	return h.push(PushStateUpdated, gs)
}

func (h *surfaceHandle) Raise() error {
	return h.push(PushSurfaceRaise, nil)
}

func (h *surfaceHandle) SetBounds(b types.Bounds) error {
	return h.push(PushSurfaceBounds, b)
}

// Close asks the surface to exit and kills it if it has not gone after a grace period
func (h *surfaceHandle) Close() error {
	h.closeOnce.Do(func() {
		if err := h.push(PushSurfaceClose, nil); err != nil {
			logger.Debugf("Surface %s did not receive close: %v", h.id, err)
		}
		go func() {
			select {
			case <-h.done:
			case <-time.After(closeGrace):
				logger.Warnf("Surface %s ignored close, killing it", h.id)
				h.kill()
			}
		}()
	})
	return nil
}

func (h *surfaceHandle) push(op string, payload any) error {
	p := h.currentPeer()
	if p == nil {
		return ErrClosed
	}
	msg, err := newPush(op, payload)
	if err != nil {
		return err
	}
	return p.send(msg)
}

func (h *surfaceHandle) currentPeer() *peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peer
}

func (h *surfaceHandle) attach(p *peer) {
	h.mu.Lock()
	h.peer = p
	h.mu.Unlock()
}

func (h *surfaceHandle) markReady() {
	h.readyOnce.Do(func() { close(h.ready) })
}

func (h *surfaceHandle) markDone() {
	h.doneOnce.Do(func() { close(h.done) })
}

func (h *surfaceHandle) kill() {
	if h.proc == nil {
		h.markDone()
		return
	}
	if err := h.proc.Kill(); err != nil {
		logger.Debugf("Kill surface %s: %v", h.id, err)
	}
}

// peerSurface lets a directly attached primary surface receive broadcasts
type peerSurface struct {
	p *peer
}

func (s *peerSurface) Alive() bool { return s.p.alive() }

func (s *peerSurface) Send(gs types.GlobalState) error {
	msg, err := newPush(PushStateUpdated, gs)
	if err != nil {
		return err
	}
	return s.p.send(msg)
}
