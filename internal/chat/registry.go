// Package chat holds the server-side channel state machine: membership,
// message logs, typing sets and the session → user side-table. The registry
// is not goroutine-safe on its own; every method is expected to run on the
// websocket hub's single event loop, which serializes all mutation.
package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teamchat/teamchat/internal/domain"
	"github.com/teamchat/teamchat/internal/metrics"
	"github.com/teamchat/teamchat/internal/protocol"
)

// Broadcaster delivers encoded events to connected sessions. The websocket
// hub implements it; tests substitute a recorder.
type Broadcaster interface {
	ToSession(sessionID string, ev protocol.Event)
	ToSessions(sessionIDs []string, ev protocol.Event)
	ToAll(ev protocol.Event)
}

type binding struct {
	userID string
	name   string
}

type channelState struct {
	id      string
	name    string
	members map[string]struct{} // session ids
	typing  map[string]struct{} // user ids
	log     []*domain.Message
	index   map[string]*domain.Message
}

// Registry owns all per-channel state for one server process. Channels come
// from static configuration and live for the life of the process; message
// logs are append-only and bounded only by process memory.
type Registry struct {
	b        Broadcaster
	log      *zap.Logger
	channels map[string]*channelState
	order    []string // channel ids in configured order
	sessions map[string]binding
	users    map[string]*domain.User
}

func NewRegistry(channels []domain.Channel, b Broadcaster, log *zap.Logger) *Registry {
	r := &Registry{
		b:        b,
		log:      log,
		channels: make(map[string]*channelState, len(channels)),
		sessions: make(map[string]binding),
		users:    make(map[string]*domain.User),
	}
	for _, ch := range channels {
		r.channels[ch.ID] = &channelState{
			id:      ch.ID,
			name:    ch.Name,
			members: make(map[string]struct{}),
			typing:  make(map[string]struct{}),
			index:   make(map[string]*domain.Message),
		}
		r.order = append(r.order, ch.ID)
	}
	return r
}

// Login binds a session to a logical user identity. First-seen users are
// created online with a nil last-seen; a returning identity is marked online
// and its name refreshed (last writer wins). Multiple concurrent sessions may
// share one identity.
func (r *Registry) Login(sessionID, userID, name string) {
	if userID == "" {
		return
	}
	r.sessions[sessionID] = binding{userID: userID, name: name}
	if u, ok := r.users[userID]; ok {
		u.Name = name
		u.Status = domain.PresenceOnline
		u.LastSeen = nil
	} else {
		r.users[userID] = &domain.User{
			ID:     userID,
			Name:   name,
			Status: domain.PresenceOnline,
		}
	}
	r.log.Info("user logged in",
		zap.String("session", sessionID),
		zap.String("user", userID),
		zap.String("name", name))
}

// Join adds the session to a channel, replies to that session alone with the
// full message history, then broadcasts a fresh presence snapshot and member
// counts. Unknown channels and unauthenticated sessions are dropped silently.
func (r *Registry) Join(sessionID, channelID string) {
	ch, ok := r.channels[channelID]
	if !ok {
		return
	}
	if _, ok := r.sessions[sessionID]; !ok {
		return
	}
	ch.members[sessionID] = struct{}{}
	r.log.Info("session joined channel",
		zap.String("session", sessionID),
		zap.String("channel", channelID))

	history := make(protocol.HistoryPayload, 0, len(ch.log))
	for _, m := range ch.log {
		history = append(history, *m)
	}
	r.toSession(sessionID, protocol.EventChannelHistory, history)
	r.broadcastPresence(ch)
	r.broadcastUserCounts()
}

// Leave removes the session from channel membership and its user from the
// typing set, then re-broadcasts presence and typing.
func (r *Registry) Leave(sessionID, channelID string) {
	ch, ok := r.channels[channelID]
	if !ok {
		return
	}
	delete(ch.members, sessionID)
	if bind, ok := r.sessions[sessionID]; ok {
		delete(ch.typing, bind.userID)
	}
	r.broadcastPresence(ch)
	r.broadcastTyping(ch)
	r.broadcastUserCounts()
}

// TypingStart flags the session's user as composing in a channel and
// broadcasts the full typing set. The server holds no expiry timer; the
// client must send typing:stop, or disconnect cleanup clears the flag.
func (r *Registry) TypingStart(sessionID, channelID string) {
	ch, ok := r.channels[channelID]
	if !ok {
		return
	}
	bind, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	ch.typing[bind.userID] = struct{}{}
	r.broadcastTyping(ch)
}

// TypingStop clears the composing flag and broadcasts the typing set.
func (r *Registry) TypingStop(sessionID, channelID string) {
	ch, ok := r.channels[channelID]
	if !ok {
		return
	}
	bind, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(ch.typing, bind.userID)
	r.broadcastTyping(ch)
}

// Send appends a message to the channel log and fans it out: message:new to
// channel members, channel:activity to every connected session. The message
// keeps the client's tempId as its final identity so the sender's optimistic
// copy reconciles in place. An id already present in the log is not appended
// again; the stored message is re-broadcast instead, which keeps a
// double-fired offline-queue flush idempotent end to end.
func (r *Registry) Send(sessionID, channelID, tempID, text string) {
	ch, ok := r.channels[channelID]
	if !ok {
		return
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}

	id := tempID
	if id == "" {
		id = uuid.NewString()
	}
	if existing, ok := ch.index[id]; ok {
		r.log.Debug("duplicate send ignored",
			zap.String("channel", channelID),
			zap.String("message", id))
		r.toSessions(r.memberSessions(ch), protocol.EventMessageNew, protocol.MessagePayload{Message: *existing})
		return
	}

	userID, userName := sessionID, "Guest"
	if bind, ok := r.sessions[sessionID]; ok {
		userID, userName = bind.userID, bind.name
	}

	msg := &domain.Message{
		ID:        id,
		ChannelID: channelID,
		UserID:    userID,
		UserName:  userName,
		Text:      trimmed,
		CreatedAt: time.Now().UTC(),
		Status:    domain.StatusDelivered,
		Reactions: map[string][]string{},
	}
	ch.log = append(ch.log, msg)
	ch.index[id] = msg
	metrics.MessagesAppended.Inc()

	r.toSessions(r.memberSessions(ch), protocol.EventMessageNew, protocol.MessagePayload{Message: *msg})
	r.toAll(protocol.EventChannelActivity, protocol.ActivityPayload{ChannelID: channelID})
}

// React toggles the caller's identity in a message's reaction set for one
// emoji and broadcasts the updated message. Reacting twice with the same
// emoji removes the reaction. Unknown messages are dropped silently.
func (r *Registry) React(sessionID, channelID, messageID, emoji string) {
	ch, ok := r.channels[channelID]
	if !ok {
		return
	}
	bind, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	msg, ok := ch.index[messageID]
	if !ok || emoji == "" {
		return
	}
	msg.ToggleReaction(emoji, bind.userID)
	r.toSessions(r.memberSessions(ch), protocol.EventMessageUpdate, protocol.MessagePayload{Message: *msg})
}

// PresenceGet re-broadcasts the presence snapshot for one channel.
func (r *Registry) PresenceGet(channelID string) {
	ch, ok := r.channels[channelID]
	if !ok {
		return
	}
	r.broadcastPresence(ch)
}

// UserCounts re-broadcasts the per-channel member-count summary.
func (r *Registry) UserCounts() {
	r.broadcastUserCounts()
}

// Disconnect marks the bound user offline with the current instant, scrubs
// the session from every channel's membership and its user from every typing
// set, re-broadcasts the affected snapshots, and destroys the binding.
func (r *Registry) Disconnect(sessionID string) {
	bind, ok := r.sessions[sessionID]
	if ok {
		if u, known := r.users[bind.userID]; known && !r.userOnline(bind.userID, sessionID) {
			now := time.Now().UTC()
			u.Status = domain.PresenceOffline
			u.LastSeen = &now
		}
		for _, id := range r.order {
			ch := r.channels[id]
			delete(ch.members, sessionID)
			if !r.userOnline(bind.userID, sessionID) {
				delete(ch.typing, bind.userID)
			}
			r.broadcastPresence(ch)
			r.broadcastTyping(ch)
		}
		r.broadcastUserCounts()
	}
	delete(r.sessions, sessionID)
	r.log.Info("session disconnected", zap.String("session", sessionID))
}

// userOnline reports whether userID still has a bound session other than the
// one given (a user with several tabs stays online until the last one drops).
func (r *Registry) userOnline(userID, exceptSession string) bool {
	for sid, bind := range r.sessions {
		if sid != exceptSession && bind.userID == userID {
			return true
		}
	}
	return false
}

// memberSessions returns the session ids currently joined to a channel.
func (r *Registry) memberSessions(ch *channelState) []string {
	ids := make([]string, 0, len(ch.members))
	for sid := range ch.members {
		ids = append(ids, sid)
	}
	return ids
}

// memberUsers resolves the channel's member sessions to distinct users.
func (r *Registry) memberUsers(ch *channelState) []domain.User {
	seen := make(map[string]struct{}, len(ch.members))
	users := make([]domain.User, 0, len(ch.members))
	for sid := range ch.members {
		bind, ok := r.sessions[sid]
		if !ok {
			continue
		}
		if _, dup := seen[bind.userID]; dup {
			continue
		}
		seen[bind.userID] = struct{}{}
		if u, known := r.users[bind.userID]; known {
			users = append(users, *u)
		} else {
			users = append(users, domain.User{
				ID:     bind.userID,
				Name:   "Unknown",
				Status: domain.PresenceOffline,
			})
		}
	}
	return users
}

func (r *Registry) broadcastPresence(ch *channelState) {
	r.toSessions(r.memberSessions(ch), protocol.EventPresenceUpdate, protocol.PresencePayload{
		ChannelID: ch.id,
		Users:     r.memberUsers(ch),
	})
}

func (r *Registry) broadcastTyping(ch *channelState) {
	users := make([]protocol.TypingUser, 0, len(ch.typing))
	for userID := range ch.typing {
		name := "Unknown"
		if u, ok := r.users[userID]; ok {
			name = u.Name
		}
		users = append(users, protocol.TypingUser{ID: userID, Name: name})
	}
	r.toSessions(r.memberSessions(ch), protocol.EventTypingUpdate, protocol.TypingPayload{
		ChannelID: ch.id,
		Users:     users,
	})
}

func (r *Registry) broadcastUserCounts() {
	summary := make(protocol.UserCountsPayload, 0, len(r.order))
	for _, id := range r.order {
		ch := r.channels[id]
		summary = append(summary, protocol.ChannelCount{
			ChannelID: id,
			UserCount: len(r.memberUsers(ch)),
		})
	}
	r.toAll(protocol.EventUserCounts, summary)
}

func (r *Registry) toSession(sessionID, name string, payload any) {
	ev, err := protocol.NewEvent(name, payload)
	if err != nil {
		r.log.Error("encode event", zap.String("event", name), zap.Error(err))
		return
	}
	r.b.ToSession(sessionID, ev)
}

func (r *Registry) toSessions(sessionIDs []string, name string, payload any) {
	ev, err := protocol.NewEvent(name, payload)
	if err != nil {
		r.log.Error("encode event", zap.String("event", name), zap.Error(err))
		return
	}
	r.b.ToSessions(sessionIDs, ev)
}

func (r *Registry) toAll(name string, payload any) {
	ev, err := protocol.NewEvent(name, payload)
	if err != nil {
		r.log.Error("encode event", zap.String("event", name), zap.Error(err))
		return
	}
	r.b.ToAll(ev)
}
