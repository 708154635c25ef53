package client

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teamchat/teamchat/internal/domain"
	"github.com/teamchat/teamchat/internal/protocol"
	"github.com/teamchat/teamchat/internal/store"
)

// DefaultTypingDebounce is how long after the last keystroke a typing:stop
// is sent. The server holds no typing timer of its own, so the client owns
// this cleanup.
const DefaultTypingDebounce = 2 * time.Second

// Session ties the connection manager, the reconciliation engine, the
// outbound queue and the unread tracker into one client-side chat session.
// On every (re)connect it re-announces the user, rejoins the focused channel
// and drains the offline queue.
type Session struct {
	conn    *Conn
	queue   *Queue
	tracker *Tracker
	rec     *Reconciler
	log     *zap.Logger

	userID   string
	userName string
	debounce time.Duration

	mu       sync.Mutex
	focused  string
	messages []domain.Message

	typingMu    sync.Mutex
	typingTimer *time.Timer
	typing      bool

	// cbMu serializes callback invocation: merges fire from both the caller's
	// goroutine (Send, Focus) and the connection's read goroutine, and the
	// callbacks must never run concurrently.
	cbMu       sync.Mutex
	onMessages func([]domain.Message)
	onPresence func(protocol.PresencePayload)
	onTyping   func(protocol.TypingPayload)

	subs []*Subscription
}

func NewSession(conn *Conn, cache store.MessageCache, channels []domain.Channel, userID, userName string, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		conn:     conn,
		queue:    NewQueue(),
		tracker:  NewTracker(channels),
		rec:      NewReconciler(cache, log),
		log:      log,
		userID:   userID,
		userName: userName,
		debounce: DefaultTypingDebounce,
	}
}

// Tracker exposes the channel list with unread counters.
func (s *Session) Tracker() *Tracker { return s.tracker }

// Conn exposes the underlying connection, mainly for its state.
func (s *Session) Conn() *Conn { return s.conn }

// OnMessages registers the callback invoked with the focused channel's
// sequence after every merge. Callbacks never run concurrently with each
// other or with the presence/typing callbacks.
func (s *Session) OnMessages(fn func([]domain.Message)) { s.onMessages = fn }

// OnPresence registers the callback for presence snapshots.
func (s *Session) OnPresence(fn func(protocol.PresencePayload)) { s.onPresence = fn }

// OnTyping registers the callback for typing snapshots.
func (s *Session) OnTyping(fn func(protocol.TypingPayload)) { s.onTyping = fn }

// Start wires the event handlers and opens the connection. Register
// callbacks before calling Start.
func (s *Session) Start(ctx context.Context) error {
	s.subs = append(s.subs,
		s.conn.OnConnect(s.handleConnect),
		s.conn.OnDisconnect(func() { s.log.Info("offline, queueing sends") }),
		s.conn.On(protocol.EventChannelHistory, s.handleHistory),
		s.conn.On(protocol.EventMessageNew, s.handleMessage),
		s.conn.On(protocol.EventMessageUpdate, s.handleMessage),
		s.conn.On(protocol.EventPresenceUpdate, s.handlePresence),
		s.conn.On(protocol.EventTypingUpdate, s.handleTyping),
		s.conn.On(protocol.EventChannelActivity, s.handleActivity),
		s.conn.On(protocol.EventUserCounts, s.handleUserCounts),
	)
	return s.conn.Connect(ctx)
}

// Stop cancels the handlers and closes the connection.
func (s *Session) Stop() {
	s.stopTyping()
	for _, sub := range s.subs {
		sub.Cancel()
	}
	s.subs = nil
	s.conn.Close()
}

// Focus switches the session to a channel: the previous channel is left, the
// cached history is loaded for first render (the one awaited cache read),
// and a join is sent so the server replies with the authoritative log.
func (s *Session) Focus(channelID string) {
	s.mu.Lock()
	previous := s.focused
	if previous == channelID {
		s.mu.Unlock()
		return
	}
	s.focused = channelID
	s.messages = s.rec.Cached(channelID)
	s.mu.Unlock()

	s.tracker.SetFocused(channelID)
	s.notifyMessages()

	if previous != "" {
		_ = s.conn.Emit(protocol.EventChannelLeave, protocol.LeavePayload{ChannelID: previous})
	}
	if channelID != "" {
		_ = s.conn.Emit(protocol.EventChannelJoin, protocol.JoinPayload{ChannelID: channelID})
	}
}

// Messages returns a copy of the focused channel's current sequence.
func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Send creates an optimistic local message and transmits it, or queues it
// while offline. The local tempId becomes the message's identity for good,
// so the server echo reconciles in place instead of duplicating.
func (s *Session) Send(text string) {
	trimmed := strings.TrimSpace(text)
	s.mu.Lock()
	channelID := s.focused
	s.mu.Unlock()
	if trimmed == "" || channelID == "" {
		return
	}

	s.stopTyping()

	tempID := uuid.NewString()
	status := domain.StatusSending
	connected := s.conn.IsConnected()
	if connected {
		status = domain.StatusSent
	}
	optimistic := domain.Message{
		ID:        tempID,
		ChannelID: channelID,
		UserID:    s.userID,
		UserName:  s.userName,
		Text:      trimmed,
		CreatedAt: time.Now().UTC(),
		Status:    status,
		Reactions: map[string][]string{},
	}

	s.mu.Lock()
	s.messages = s.rec.Apply(s.messages, []domain.Message{optimistic})
	s.mu.Unlock()
	s.notifyMessages()

	if !connected {
		s.queue.Enqueue(QueuedSend{TempID: tempID, ChannelID: channelID, Text: trimmed})
		return
	}
	_ = s.conn.Emit(protocol.EventMessageSend, protocol.SendPayload{
		TempID:    tempID,
		ChannelID: channelID,
		Text:      trimmed,
	})
}

// React toggles an emoji reaction on a message in the focused channel.
func (s *Session) React(messageID, emoji string) {
	s.mu.Lock()
	channelID := s.focused
	s.mu.Unlock()
	if channelID == "" {
		return
	}
	_ = s.conn.Emit(protocol.EventMessageReact, protocol.ReactPayload{
		ChannelID: channelID,
		MessageID: messageID,
		Emoji:     emoji,
	})
}

// Typing signals a keystroke. The first call emits typing:start; each call
// re-arms the debounce timer that eventually emits typing:stop. Sending a
// message stops typing immediately.
func (s *Session) Typing() {
	s.mu.Lock()
	channelID := s.focused
	s.mu.Unlock()
	if channelID == "" {
		return
	}

	s.typingMu.Lock()
	defer s.typingMu.Unlock()
	if !s.typing {
		s.typing = true
		_ = s.conn.Emit(protocol.EventTypingStart, protocol.TypingStartPayload{ChannelID: channelID})
	}
	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	s.typingTimer = time.AfterFunc(s.debounce, s.stopTyping)
}

func (s *Session) stopTyping() {
	s.typingMu.Lock()
	wasTyping := s.typing
	s.typing = false
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	s.typingMu.Unlock()

	if wasTyping {
		s.mu.Lock()
		channelID := s.focused
		s.mu.Unlock()
		if channelID != "" {
			_ = s.conn.Emit(protocol.EventTypingStop, protocol.TypingStopPayload{ChannelID: channelID})
		}
	}
}

// handleConnect runs on every connect transition, including reconnects.
func (s *Session) handleConnect() {
	_ = s.conn.Emit(protocol.EventAuthLogin, protocol.LoginPayload{
		UserID: s.userID,
		Name:   s.userName,
	})

	s.mu.Lock()
	channelID := s.focused
	s.mu.Unlock()
	if channelID != "" {
		_ = s.conn.Emit(protocol.EventChannelJoin, protocol.JoinPayload{ChannelID: channelID})
	}
	_ = s.conn.Emit(protocol.EventGetUserCounts, protocol.GetUserCountsPayload{})

	s.queue.Flush(func(item QueuedSend) {
		_ = s.conn.Emit(protocol.EventMessageSend, protocol.SendPayload{
			TempID:    item.TempID,
			ChannelID: item.ChannelID,
			Text:      item.Text,
		})
	})
}

func (s *Session) handleHistory(payload json.RawMessage) {
	frame, err := protocol.DecodeServer(protocol.Event{Name: protocol.EventChannelHistory, Payload: payload})
	if err != nil {
		s.log.Warn("bad history payload", zap.Error(err))
		return
	}
	history := *frame.(*protocol.HistoryPayload)

	// A history reply can land after a Focus switch; only messages for the
	// focused channel belong in the on-screen sequence, the rest go to the
	// cache alone.
	s.mu.Lock()
	focused := s.focused
	onscreen := make([]domain.Message, 0, len(history))
	var elsewhere []domain.Message
	for _, m := range history {
		if m.ChannelID == focused {
			onscreen = append(onscreen, m)
		} else {
			elsewhere = append(elsewhere, m)
		}
	}
	if len(onscreen) > 0 {
		s.messages = s.rec.Apply(s.messages, onscreen)
	}
	s.mu.Unlock()

	if len(elsewhere) > 0 {
		s.rec.Apply(nil, elsewhere)
	}
	if len(onscreen) > 0 {
		s.notifyMessages()
	}
}

func (s *Session) handleMessage(payload json.RawMessage) {
	var msg protocol.MessagePayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.log.Warn("bad message payload", zap.Error(err))
		return
	}

	s.mu.Lock()
	focused := s.focused
	if msg.ChannelID == focused {
		s.messages = s.rec.Apply(s.messages, []domain.Message{msg.Message})
	}
	s.mu.Unlock()

	if msg.ChannelID == focused {
		s.notifyMessages()
	} else {
		// Not on screen; still write it through to the cache.
		s.rec.Apply(nil, []domain.Message{msg.Message})
	}
}

func (s *Session) handlePresence(payload json.RawMessage) {
	var p protocol.PresencePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.log.Warn("bad presence payload", zap.Error(err))
		return
	}
	s.tracker.SetUserCount(p.ChannelID, len(p.Users))
	if s.onPresence != nil {
		s.cbMu.Lock()
		s.onPresence(p)
		s.cbMu.Unlock()
	}
}

func (s *Session) handleTyping(payload json.RawMessage) {
	var p protocol.TypingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.log.Warn("bad typing payload", zap.Error(err))
		return
	}
	if s.onTyping != nil {
		s.cbMu.Lock()
		s.onTyping(p)
		s.cbMu.Unlock()
	}
}

func (s *Session) handleActivity(payload json.RawMessage) {
	var p protocol.ActivityPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return
	}
	s.tracker.Bump(p.ChannelID)
}

func (s *Session) handleUserCounts(payload json.RawMessage) {
	var counts protocol.UserCountsPayload
	if err := json.Unmarshal(payload, &counts); err != nil {
		return
	}
	for _, c := range counts {
		s.tracker.SetUserCount(c.ChannelID, c.UserCount)
	}
}

func (s *Session) notifyMessages() {
	if s.onMessages == nil {
		return
	}
	snapshot := s.Messages()
	s.cbMu.Lock()
	s.onMessages(snapshot)
	s.cbMu.Unlock()
}
