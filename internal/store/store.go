// Package store implements the client's local persistence collaborator: a
// key-value cache of messages per channel plus a small settings table. All
// implementations upsert by message id and tolerate absence - a failed read
// yields an empty list, never an error surfaced to the message flow.
package store

import "github.com/teamchat/teamchat/internal/domain"

// MessageCache is the persistence shape consumed by the sync layer.
type MessageCache interface {
	// SaveMessage inserts or replaces a message by id.
	SaveMessage(msg domain.Message) error
	// MessagesByChannel returns the cached messages for a channel ordered
	// by creation instant ascending. A missing channel yields an empty
	// slice.
	MessagesByChannel(channelID string) ([]domain.Message, error)
	// SetSetting stores a small client setting such as the display name.
	SetSetting(key, value string) error
	// Setting returns a stored setting, or "" if absent.
	Setting(key string) (string, error)
	Close() error
}
