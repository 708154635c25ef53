package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/teamchat/teamchat/internal/domain"
)

// PebbleCache persists messages in an embedded Pebble database.
//
// Key layout:
//
//	msg:<channelID>:<messageID>  → message JSON
//	setting:<key>                → raw value
//
// Messages are keyed by id, not by arrival order, so a server echo of an
// optimistic message overwrites the local copy in place.
type PebbleCache struct {
	db  *pebble.DB
	log *zap.Logger
}

// OpenPebble opens (or creates) the cache at path.
func OpenPebble(path string, log *zap.Logger) (*PebbleCache, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble cache: %w", err)
	}
	log.Info("message cache opened", zap.String("path", path))
	return &PebbleCache{db: db, log: log}, nil
}

func (c *PebbleCache) Close() error {
	return c.db.Close()
}

func msgKey(channelID, messageID string) []byte {
	return []byte("msg:" + channelID + ":" + messageID)
}

// SaveMessage upserts a message under its channel/id key.
func (c *PebbleCache) SaveMessage(msg domain.Message) error {
	if msg.ID == "" || msg.ChannelID == "" {
		return errors.New("message missing id or channel")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.db.Set(msgKey(msg.ChannelID, msg.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// MessagesByChannel scans the channel's key prefix and returns the messages
// ordered by creation instant ascending. Entries that fail to decode are
// skipped, not fatal.
func (c *PebbleCache) MessagesByChannel(channelID string) ([]domain.Message, error) {
	prefix := []byte("msg:" + channelID + ":")
	upper := append(append([]byte{}, prefix...), 0xff)

	iter, err := c.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upper,
	})
	if err != nil {
		return nil, fmt.Errorf("open cache iterator: %w", err)
	}
	defer iter.Close()

	var msgs []domain.Message
	for iter.First(); iter.Valid(); iter.Next() {
		var m domain.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			c.log.Warn("skipping corrupt cache entry",
				zap.ByteString("key", iter.Key()),
				zap.Error(err))
			continue
		}
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

func (c *PebbleCache) SetSetting(key, value string) error {
	return c.db.Set([]byte("setting:"+key), []byte(value), pebble.Sync)
}

func (c *PebbleCache) Setting(key string) (string, error) {
	val, closer, err := c.db.Get([]byte("setting:" + key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("read setting: %w", err)
	}
	defer closer.Close()
	return string(val), nil
}
