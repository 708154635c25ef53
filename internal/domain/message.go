package domain

import "time"

// MessageStatus tracks delivery progress. Transitions only move forward:
// sending → sent → delivered.
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
)

var statusRank = map[MessageStatus]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
}

// AtLeast reports whether s is as far along as other.
func (s MessageStatus) AtLeast(other MessageStatus) bool {
	return statusRank[s] >= statusRank[other]
}

// Message is a single chat message. The ID is generated client-side and kept
// as the final identity once the server echoes the message back, so an
// optimistic local copy and its confirmed counterpart are the same record.
type Message struct {
	ID        string              `json:"id"`
	ChannelID string              `json:"channelId"`
	UserID    string              `json:"userId"`
	UserName  string              `json:"userName"`
	Text      string              `json:"text"`
	CreatedAt time.Time           `json:"createdAt"`
	Status    MessageStatus       `json:"status"`
	Edited    bool                `json:"edited"`
	Deleted   bool                `json:"deleted"`
	Reactions map[string][]string `json:"reactions"`
}

// ToggleReaction adds userID to the reaction set for emoji, or removes it if
// already present. Empty sets are dropped from the map.
func (m *Message) ToggleReaction(emoji, userID string) {
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}
	users := m.Reactions[emoji]
	for i, id := range users {
		if id == userID {
			users = append(users[:i], users[i+1:]...)
			if len(users) == 0 {
				delete(m.Reactions, emoji)
			} else {
				m.Reactions[emoji] = users
			}
			return
		}
	}
	m.Reactions[emoji] = append(users, userID)
}

// ReactionCount returns how many users currently have emoji applied.
func (m *Message) ReactionCount(emoji string) int {
	return len(m.Reactions[emoji])
}
