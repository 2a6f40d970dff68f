package ipc

import (
	"sync"
	"time"

	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 8 << 20
	outboundQueue  = 256
)

// peer is one WebSocket connection. Every outbound message goes through a
// single queue drained by one writer, so a peer sees messages in the order
// they were sent.
type peer struct {
	id   string
	conn *websocket.Conn
	out  chan Message

	done      chan struct{}
	closeOnce sync.Once
}

func newPeer(id string, conn *websocket.Conn) *peer {
	conn.SetReadLimit(maxMessageSize)
	return &peer{
		id:   id,
		conn: conn,
		out:  make(chan Message, outboundQueue),
		done: make(chan struct{}),
	}
}

// send queues msg, blocking while the queue is full
func (p *peer) send(msg Message) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}

	select {
	case p.out <- msg:
		return nil
	case <-p.done:
		return ErrClosed
	}
}

func (p *peer) alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *peer) writeLoop() {
	for {
		select {
		case msg := <-p.out:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteJSON(msg); err != nil {
				logger.Debugf("Peer %s write failed: %v", p.id, err)
				p.close()
				return
			}
		case <-p.done:
			return
		}
	}
}

func (p *peer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}
