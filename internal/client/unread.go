package client

import (
	"sync"

	"github.com/teamchat/teamchat/internal/domain"
)

// Tracker maintains the channel list with unread counters and member counts.
// Activity signals bump the unread counter of every channel except the one
// currently focused; focusing a channel resets its counter.
type Tracker struct {
	mu        sync.Mutex
	channels  []domain.Channel
	focused   string
	listeners []func([]domain.Channel)
}

func NewTracker(channels []domain.Channel) *Tracker {
	t := &Tracker{channels: make([]domain.Channel, len(channels))}
	copy(t.channels, channels)
	return t
}

// Subscribe registers a listener for channel-list changes and invokes it
// immediately with the current state. The returned function unsubscribes.
func (t *Tracker) Subscribe(fn func([]domain.Channel)) func() {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	idx := len(t.listeners) - 1
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	fn(snapshot)
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.listeners[idx] = nil
	}
}

// Channels returns a copy of the current channel list.
func (t *Tracker) Channels() []domain.Channel {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Focused returns the currently focused channel id, or "".
func (t *Tracker) Focused() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.focused
}

// SetFocused marks a channel as the one on screen and clears its unread
// counter. Pass "" when no channel is focused.
func (t *Tracker) SetFocused(channelID string) {
	t.mu.Lock()
	t.focused = channelID
	changed := false
	for i := range t.channels {
		if t.channels[i].ID == channelID && t.channels[i].UnreadCount != 0 {
			t.channels[i].UnreadCount = 0
			changed = true
		}
	}
	t.mu.Unlock()
	if changed {
		t.notify()
	}
}

// Bump increments a channel's unread counter unless it is focused.
func (t *Tracker) Bump(channelID string) {
	t.mu.Lock()
	if channelID == t.focused {
		t.mu.Unlock()
		return
	}
	changed := false
	for i := range t.channels {
		if t.channels[i].ID == channelID {
			t.channels[i].UnreadCount++
			changed = true
		}
	}
	t.mu.Unlock()
	if changed {
		t.notify()
	}
}

// SetUserCount updates a channel's member count from a server summary.
func (t *Tracker) SetUserCount(channelID string, count int) {
	t.mu.Lock()
	changed := false
	for i := range t.channels {
		if t.channels[i].ID == channelID && t.channels[i].UserCount != count {
			t.channels[i].UserCount = count
			changed = true
		}
	}
	t.mu.Unlock()
	if changed {
		t.notify()
	}
}

func (t *Tracker) snapshotLocked() []domain.Channel {
	out := make([]domain.Channel, len(t.channels))
	copy(out, t.channels)
	return out
}

func (t *Tracker) notify() {
	t.mu.Lock()
	listeners := make([]func([]domain.Channel), len(t.listeners))
	copy(listeners, t.listeners)
	snapshot := t.snapshotLocked()
	t.mu.Unlock()
	for _, fn := range listeners {
		if fn != nil {
			fn(snapshot)
		}
	}
}
