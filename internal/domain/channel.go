package domain

// Channel is a fixed chat room. The roster comes from static configuration;
// channels are never created or destroyed at runtime.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// UserCount mirrors the server's member-count summary.
	UserCount int `json:"userCount"`
	// UnreadCount is client-local; it never goes negative and is reset to
	// zero when the channel becomes focused.
	UnreadCount int `json:"unreadCount"`
}

// DefaultChannels returns the built-in channel roster.
func DefaultChannels() []Channel {
	return []Channel{
		{ID: "general", Name: "General"},
		{ID: "development", Name: "Development"},
		{ID: "random", Name: "Random"},
	}
}
