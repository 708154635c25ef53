// Package client implements the synchronization side of the chat system: the
// connection manager, the optimistic-message reconciliation engine, the
// offline outbound queue, and the unread/activity tracker.
package client

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/teamchat/teamchat/internal/protocol"
)

// ConnState is the connection lifecycle state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
)

// Meta-events dispatched on connectivity transitions. They share the handler
// mechanism with wire events but never touch the network.
const (
	MetaConnect    = "connect"
	MetaDisconnect = "disconnect"
)

const emitTimeout = 10 * time.Second

// Handler receives the raw payload of one event occurrence.
type Handler func(payload json.RawMessage)

// Subscription identifies one registered handler. Handlers for the same
// event run in subscription order; Cancel removes the handler.
type Subscription struct {
	cancel func()
}

func (s *Subscription) Cancel() {
	if s != nil && s.cancel != nil {
		s.cancel()
	}
}

type handlerEntry struct {
	id int
	fn Handler
}

type dispatcher struct {
	mu       sync.Mutex
	nextID   int
	handlers map[string][]handlerEntry
}

func newDispatcher() *dispatcher {
	return &dispatcher{handlers: make(map[string][]handlerEntry)}
}

func (d *dispatcher) on(event string, fn Handler) *Subscription {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.handlers[event] = append(d.handlers[event], handlerEntry{id: id, fn: fn})
	d.mu.Unlock()
	return &Subscription{cancel: func() { d.off(event, id) }}
}

func (d *dispatcher) off(event string, id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := d.handlers[event]
	for i, e := range entries {
		if e.id == id {
			d.handlers[event] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// dispatch invokes handlers synchronously in subscription order.
func (d *dispatcher) dispatch(event string, payload json.RawMessage) {
	d.mu.Lock()
	entries := make([]handlerEntry, len(d.handlers[event]))
	copy(entries, d.handlers[event])
	d.mu.Unlock()
	for _, e := range entries {
		e.fn(payload)
	}
}

// reconnector computes exponential backoff with jitter. The attempt counter
// resets once a connection has stayed up for a minute.
type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	attempt     int
	connectedAt time.Time
}

func newReconnector() *reconnector {
	return &reconnector{
		baseDelay: 1 * time.Second,
		maxDelay:  30 * time.Second,
	}
}

func (r *reconnector) markConnected() {
	r.connectedAt = time.Now()
}

func (r *reconnector) nextDelay() time.Duration {
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > 60*time.Second {
		r.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

// Conn is the client's single long-lived connection. Connect is idempotent,
// Emit is fire-and-forget and transparently connects first when needed, and
// handlers registered with On are invoked in subscription order. Transport
// drops trigger automatic reconnection; the rest of the client only observes
// the connect/disconnect meta-events.
type Conn struct {
	url string
	log *zap.Logger

	mu          sync.Mutex
	writeMu     sync.Mutex
	state       ConnState
	conn        *websocket.Conn
	cancel      context.CancelFunc
	intentional bool
	// pending buffers emits issued while disconnected; they are flushed in
	// order as soon as the connection is up, before the connect meta-event.
	pending []protocol.Event

	d     *dispatcher
	recon *reconnector
}

func NewConn(url string, log *zap.Logger) *Conn {
	if log == nil {
		log = zap.NewNop()
	}
	return &Conn{
		url:   url,
		log:   log,
		state: StateDisconnected,
		d:     newDispatcher(),
		recon: newReconnector(),
	}
}

// State returns the current connection state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the transport is currently up.
func (c *Conn) IsConnected() bool {
	return c.State() == StateConnected
}

// On registers a handler for a wire event or one of the meta-events.
func (c *Conn) On(event string, fn Handler) *Subscription {
	return c.d.on(event, fn)
}

// OnConnect registers a handler for the connect transition.
func (c *Conn) OnConnect(fn func()) *Subscription {
	return c.d.on(MetaConnect, func(json.RawMessage) { fn() })
}

// OnDisconnect registers a handler for the disconnect transition.
func (c *Conn) OnDisconnect(fn func()) *Subscription {
	return c.d.on(MetaDisconnect, func(json.RawMessage) { fn() })
}

// Connect establishes the connection. Calling it while connected or already
// connecting is a no-op.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.intentional = false
	c.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return err
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.intentional {
		c.state = StateDisconnected
		c.mu.Unlock()
		cancel()
		conn.Close(websocket.StatusNormalClosure, "")
		return nil
	}
	c.conn = conn
	c.state = StateConnected
	c.cancel = cancel
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	c.recon.markConnected()
	c.log.Info("connected", zap.String("url", c.url))

	// Connect handlers run first so a session can announce itself (login)
	// before any frame buffered while offline reaches the server.
	c.d.dispatch(MetaConnect, nil)
	for _, ev := range pending {
		c.write(ev)
	}

	go c.readLoop(readCtx, conn)
	return nil
}

// Close tears the connection down intentionally; no reconnect follows.
func (c *Conn) Close() {
	c.mu.Lock()
	c.intentional = true
	conn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.cancel = nil
	wasConnected := c.state == StateConnected
	c.state = StateDisconnected
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "")
	}
	if wasConnected {
		c.d.dispatch(MetaDisconnect, nil)
	}
}

// Emit sends an event to the server. While disconnected the event is
// buffered, a connection attempt is kicked off, and the buffer drains in
// order once the transport is up - an emit is never silently dropped.
func (c *Conn) Emit(event string, payload any) error {
	ev, err := protocol.NewEvent(event, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateConnected {
		c.pending = append(c.pending, ev)
		state := c.state
		c.mu.Unlock()
		if state == StateDisconnected {
			go func() {
				if err := c.Connect(context.Background()); err != nil {
					c.log.Warn("connect for emit failed", zap.Error(err))
					go c.reconnectLoop()
				}
			}()
		}
		return nil
	}
	c.mu.Unlock()

	c.write(ev)
	return nil
}

// write serializes frame writes; nhooyr permits one concurrent writer.
func (c *Conn) write(ev protocol.Event) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.mu.Lock()
		c.pending = append(c.pending, ev)
		c.mu.Unlock()
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, ev); err != nil {
		c.log.Warn("emit failed", zap.String("event", ev.Name), zap.Error(err))
	}
}

func (c *Conn) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var ev protocol.Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			c.mu.Lock()
			intentional := c.intentional
			if c.conn == conn {
				c.conn = nil
				c.state = StateDisconnected
			}
			c.mu.Unlock()

			if intentional {
				return
			}
			c.log.Info("connection lost", zap.Error(err))
			c.d.dispatch(MetaDisconnect, nil)
			go c.reconnectLoop()
			return
		}
		c.d.dispatch(ev.Name, ev.Payload)
	}
}

func (c *Conn) reconnectLoop() {
	for {
		c.mu.Lock()
		if c.intentional || c.state == StateConnected || c.state == StateConnecting {
			c.mu.Unlock()
			return
		}
		c.state = StateReconnecting
		c.mu.Unlock()

		delay := c.recon.nextDelay()
		c.log.Info("reconnecting", zap.Duration("delay", delay))
		time.Sleep(delay)

		c.mu.Lock()
		if c.intentional {
			c.mu.Unlock()
			return
		}
		c.state = StateDisconnected
		c.mu.Unlock()

		if err := c.Connect(context.Background()); err == nil {
			return
		}
	}
}
