package domain

import "time"

// PresenceStatus is a user's connectivity state.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// User is a logical identity chosen by the client. It is stable across
// reconnects and distinct from any one transport session.
type User struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Status PresenceStatus `json:"status"`
	// LastSeen is set when the user goes offline and nil while online.
	LastSeen *time.Time `json:"lastSeen"`
}
