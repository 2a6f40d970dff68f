package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/dooshek/gamecoach/internal/types"
	"github.com/gorilla/websocket"
)

const dialTimeout = 5 * time.Second

// Client is the surface end of the message channel. It implements
// syncclient.Backend and the surface commands.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu       sync.Mutex
	nextID   uint64
	pending  map[string]chan Message
	watchers map[uint64]func(types.GlobalState)
	nextW    uint64
	onPush   func(Message)

	inbox *pushQueue
	done  chan struct{}
	once  sync.Once
}

// Dial connects to the host listening on socketPath
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	dialer := websocket.Dialer{
		NetDialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
		HandshakeTimeout: dialTimeout,
	}
	return dial(ctx, &dialer, "ws://unix/ws")
}

// DialURL connects to a host served over TCP, e.g. an httptest server
func DialURL(ctx context.Context, url string) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	return dial(ctx, &dialer, url)
}

func dial(ctx context.Context, dialer *websocket.Dialer, url string) (*Client, error) {
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, fmt.Errorf("host refused connection: %s", resp.Status)
		}
		return nil, fmt.Errorf("failed to connect to gamecoach host: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	c := &Client{
		conn:     conn,
		pending:  make(map[string]chan Message),
		watchers: make(map[uint64]func(types.GlobalState)),
		inbox:    newPushQueue(),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	go c.dispatchLoop()
	return c, nil
}

// OnPush receives every push other than state.updated, in arrival order
func (c *Client) OnPush(fn func(Message)) {
	c.mu.Lock()
	c.onPush = fn
	c.mu.Unlock()
}

// Done closes when the connection is gone
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() error {
	c.shutdown()
	return nil
}

func (c *Client) shutdown() {
	c.once.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
		c.inbox.close()
	})
}

func (c *Client) readLoop() {
	defer c.shutdown()
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				logger.Debugf("IPC read failed: %v", err)
			}
			return
		}

		switch msg.Type {
		case TypeResponse:
			c.mu.Lock()
			ch, ok := c.pending[msg.ID]
			delete(c.pending, msg.ID)
			c.mu.Unlock()
			if ok {
				ch <- msg
			}
		case TypePush:
			c.inbox.put(msg)
		}
	}
}

// dispatchLoop runs push handlers off the read loop so they may issue requests
func (c *Client) dispatchLoop() {
	for {
		msg, ok := c.inbox.get()
		if !ok {
			return
		}
		if msg.Op == PushStateUpdated {
			var gs types.GlobalState
			if err := msg.Decode(&gs); err != nil {
				logger.Warnf("Dropping malformed state push: %v", err)
				continue
			}
			c.mu.Lock()
			watchers := make([]func(types.GlobalState), 0, len(c.watchers))
			for _, fn := range c.watchers {
				watchers = append(watchers, fn)
			}
			c.mu.Unlock()
			for _, fn := range watchers {
				fn(gs)
			}
			continue
		}

		c.mu.Lock()
		onPush := c.onPush
		c.mu.Unlock()
		if onPush != nil {
			onPush(msg)
		}
	}
}

func (c *Client) call(ctx context.Context, op string, payload any, out any) error {
	c.mu.Lock()
	c.nextID++
	id := strconv.FormatUint(c.nextID, 10)
	ch := make(chan Message, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	cleanup := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}

	msg, err := newMessage(TypeRequest, id, op, payload)
	if err != nil {
		cleanup()
		return err
	}

	c.writeMu.Lock()
	select {
	case <-c.done:
		c.writeMu.Unlock()
		cleanup()
		return ErrClosed
	default:
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = c.conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		cleanup()
		return fmt.Errorf("%s: %w", op, errors.Join(ErrClosed, err))
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return fmt.Errorf("%s: %s", op, resp.Error)
		}
		if out != nil {
			return resp.Decode(out)
		}
		return nil
	case <-ctx.Done():
		cleanup()
		return ctx.Err()
	case <-c.done:
		cleanup()
		return ErrClosed
	}
}

func (c *Client) GetState(ctx context.Context) (types.GlobalState, error) {
	var gs types.GlobalState
	err := c.call(ctx, OpStateGet, nil, &gs)
	return gs, err
}

// Watch delivers every state push to fn, starting with the snapshot the
// host returns on subscribe
func (c *Client) Watch(ctx context.Context, fn func(types.GlobalState)) (func(), error) {
	c.mu.Lock()
	id := c.nextW
	c.nextW++
	c.watchers[id] = fn
	c.mu.Unlock()

	unsubscribe := func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}

	var gs types.GlobalState
	if err := c.call(ctx, OpStateSubscribe, nil, &gs); err != nil {
		unsubscribe()
		return nil, err
	}
	fn(gs)
	return unsubscribe, nil
}

func (c *Client) SetGameState(ctx context.Context, patch types.GameStatePatch) error {
	return c.call(ctx, OpSetGameState, patch, nil)
}

func (c *Client) SetAnalyzing(ctx context.Context, analyzing bool) error {
	return c.call(ctx, OpSetAnalyzing, boolPayload{Value: analyzing}, nil)
}

func (c *Client) SetLastAnalysis(ctx context.Context, advice *types.Advice) error {
	return c.call(ctx, OpSetLastAnalysis, advicePayload{Advice: advice}, nil)
}

func (c *Client) SetSettings(ctx context.Context, patch types.SettingsPatch) error {
	return c.call(ctx, OpSetSettings, patch, nil)
}

func (c *Client) SetOverlayVisible(ctx context.Context, visible bool) error {
	return c.call(ctx, OpSetOverlayVisible, boolPayload{Value: visible}, nil)
}

func (c *Client) ShowOverlay(ctx context.Context) error {
	return c.call(ctx, OpOverlayShow, nil, nil)
}

func (c *Client) HideOverlay(ctx context.Context) error {
	return c.call(ctx, OpOverlayHide, nil, nil)
}

func (c *Client) StartAnalysis(ctx context.Context) error {
	return c.call(ctx, OpAnalysisStart, nil, nil)
}

func (c *Client) StopAnalysis(ctx context.Context) error {
	return c.call(ctx, OpAnalysisStop, nil, nil)
}

func (c *Client) ListSources(ctx context.Context) ([]types.Source, error) {
	var sources []types.Source
	err := c.call(ctx, OpSourcesList, nil, &sources)
	return sources, err
}

// Attach binds this connection to a surface role. Overlays pass the id
// they were launched with.
func (c *Client) Attach(ctx context.Context, role types.Role, id string) error {
	return c.call(ctx, OpSurfaceAttach, AttachPayload{Role: role, ID: id}, nil)
}

// Ready tells the host the surface can receive content
func (c *Client) Ready(ctx context.Context) error {
	return c.call(ctx, OpSurfaceReady, nil, nil)
}

// pushQueue is an unbounded FIFO between the read and dispatch loops
type pushQueue struct {
	mu     sync.Mutex
	items  []Message
	signal chan struct{}
	closed bool
}

func newPushQueue() *pushQueue {
	return &pushQueue{signal: make(chan struct{}, 1)}
}

func (q *pushQueue) put(msg Message) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *pushQueue) get() (Message, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return msg, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return Message{}, false
		}
		<-q.signal
	}
}

func (q *pushQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
