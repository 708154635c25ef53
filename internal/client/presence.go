package client

import (
	"strings"

	"github.com/teamchat/teamchat/internal/domain"
)

// SplitPresence partitions a presence snapshot into online and offline
// users, preserving the snapshot's order within each group.
func SplitPresence(users []domain.User) (online, offline []domain.User) {
	for _, u := range users {
		if u.Status == domain.PresenceOnline {
			online = append(online, u)
		} else {
			offline = append(offline, u)
		}
	}
	return online, offline
}

// TypingLabel formats the typing set for display. The server does not
// exclude the local user; callers that want self-exclusion filter names
// before calling.
func TypingLabel(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing..."
	default:
		return strings.Join(names, ", ") + " are typing..."
	}
}
