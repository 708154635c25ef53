package ws

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/teamchat/teamchat/internal/chat"
	"github.com/teamchat/teamchat/internal/metrics"
	"github.com/teamchat/teamchat/internal/protocol"
)

type inboundFrame struct {
	client *Client
	ev     protocol.Event
}

// Hub owns all active websocket sessions and runs the server's single event
// loop. Every registry mutation happens on this loop, so handlers run to
// completion without interleaving and the registry needs no locking.
type Hub struct {
	registry *chat.Registry
	log      *zap.Logger

	// sessions maps sessionID → client. Touched only on the Run loop.
	sessions map[string]*Client

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundFrame

	// pending holds sessions dropped mid-broadcast; their registry cleanup
	// runs after the current handler finishes so registry operations stay
	// run-to-completion.
	pending []string
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:        log,
		sessions:   make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundFrame, 256),
	}
}

// SetRegistry wires the channel registry. The hub and registry reference each
// other (the registry broadcasts through the hub), so this happens after
// construction.
func (h *Hub) SetRegistry(r *chat.Registry) {
	h.registry = r
}

// Run starts the hub's event loop. Call this in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.sessions[client.sessionID] = client
			metrics.ConnectedSessions.Inc()
			h.log.Info("session connected",
				zap.String("session", client.sessionID),
				zap.Int("total", len(h.sessions)))

		case client := <-h.unregister:
			if _, ok := h.sessions[client.sessionID]; ok {
				h.drop(client)
				h.registry.Disconnect(client.sessionID)
			}

		case frame := <-h.inbound:
			h.dispatch(frame.client, frame.ev)
		}

		for len(h.pending) > 0 {
			sid := h.pending[0]
			h.pending = h.pending[1:]
			h.registry.Disconnect(sid)
		}
	}
}

// dispatch decodes one client frame and applies it to the registry. Frames
// that fail to decode are protocol no-ops, never errors surfaced to the
// sender.
func (h *Hub) dispatch(c *Client, ev protocol.Event) {
	frame, err := protocol.DecodeClient(ev)
	if err != nil {
		h.log.Debug("dropping frame",
			zap.String("session", c.sessionID),
			zap.Error(err))
		return
	}

	sid := c.sessionID
	switch p := frame.(type) {
	case *protocol.LoginPayload:
		h.registry.Login(sid, p.UserID, p.Name)
	case *protocol.JoinPayload:
		h.registry.Join(sid, p.ChannelID)
	case *protocol.LeavePayload:
		h.registry.Leave(sid, p.ChannelID)
	case *protocol.SendPayload:
		h.registry.Send(sid, p.ChannelID, p.TempID, p.Text)
	case *protocol.ReactPayload:
		h.registry.React(sid, p.ChannelID, p.MessageID, p.Emoji)
	case *protocol.PresenceGetPayload:
		h.registry.PresenceGet(p.ChannelID)
	case *protocol.TypingStartPayload:
		h.registry.TypingStart(sid, p.ChannelID)
	case *protocol.TypingStopPayload:
		h.registry.TypingStop(sid, p.ChannelID)
	case *protocol.GetUserCountsPayload:
		h.registry.UserCounts()
	}
}

// drop removes a client from the session table and stops its pumps.
func (h *Hub) drop(client *Client) {
	delete(h.sessions, client.sessionID)
	close(client.send)
	close(client.done)
	metrics.ConnectedSessions.Dec()
	h.log.Info("session disconnected",
		zap.String("session", client.sessionID),
		zap.Int("total", len(h.sessions)))
}

// ToSession implements chat.Broadcaster. Only called from the Run loop.
func (h *Hub) ToSession(sessionID string, ev protocol.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal event", zap.Error(err))
		return
	}
	if client, ok := h.sessions[sessionID]; ok {
		h.push(client, data)
	}
}

// ToSessions implements chat.Broadcaster.
func (h *Hub) ToSessions(sessionIDs []string, ev protocol.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal event", zap.Error(err))
		return
	}
	for _, sid := range sessionIDs {
		if client, ok := h.sessions[sid]; ok {
			h.push(client, data)
		}
	}
}

// ToAll implements chat.Broadcaster.
func (h *Hub) ToAll(ev protocol.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal event", zap.Error(err))
		return
	}
	for _, client := range h.sessions {
		h.push(client, data)
	}
}

func (h *Hub) push(client *Client, data []byte) {
	select {
	case client.send <- data:
		metrics.EventsSent.Inc()
	default:
		// Send buffer full - the client is too slow, cut it loose.
		metrics.EventsDropped.Inc()
		h.drop(client)
		h.pending = append(h.pending, client.sessionID)
	}
}
