package store

import (
	"errors"
	"sort"
	"sync"

	"github.com/teamchat/teamchat/internal/domain"
)

// MemoryCache is a goroutine-safe in-memory MessageCache. It backs tests and
// serves as the degraded mode when the on-disk cache cannot be opened.
type MemoryCache struct {
	mu       sync.RWMutex
	messages map[string]map[string]domain.Message // channelID → messageID → message
	settings map[string]string
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		messages: make(map[string]map[string]domain.Message),
		settings: make(map[string]string),
	}
}

func (c *MemoryCache) SaveMessage(msg domain.Message) error {
	if msg.ID == "" || msg.ChannelID == "" {
		return errors.New("message missing id or channel")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	byID, ok := c.messages[msg.ChannelID]
	if !ok {
		byID = make(map[string]domain.Message)
		c.messages[msg.ChannelID] = byID
	}
	byID[msg.ID] = msg
	return nil
}

func (c *MemoryCache) MessagesByChannel(channelID string) ([]domain.Message, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byID := c.messages[channelID]
	msgs := make([]domain.Message, 0, len(byID))
	for _, m := range byID {
		msgs = append(msgs, m)
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}

func (c *MemoryCache) SetSetting(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings[key] = value
	return nil
}

func (c *MemoryCache) Setting(key string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings[key], nil
}

func (c *MemoryCache) Close() error { return nil }
