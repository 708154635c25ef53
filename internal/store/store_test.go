package store

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/teamchat/teamchat/internal/domain"
)

func testMessage(id, channelID string, at time.Time) domain.Message {
	return domain.Message{
		ID:        id,
		ChannelID: channelID,
		UserID:    "u1",
		UserName:  "Ana",
		Text:      "hello " + id,
		CreatedAt: at,
		Status:    domain.StatusDelivered,
	}
}

// caches runs the same assertions against both implementations.
func caches(t *testing.T) map[string]MessageCache {
	t.Helper()
	pc, err := OpenPebble(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("OpenPebble: %v", err)
	}
	t.Cleanup(func() { pc.Close() })
	return map[string]MessageCache{
		"memory": NewMemoryCache(),
		"pebble": pc,
	}
}

func TestSaveAndReadBack(t *testing.T) {
	for name, c := range caches(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			if err := c.SaveMessage(testMessage("m2", "general", base.Add(time.Second))); err != nil {
				t.Fatalf("SaveMessage: %v", err)
			}
			if err := c.SaveMessage(testMessage("m1", "general", base)); err != nil {
				t.Fatalf("SaveMessage: %v", err)
			}
			if err := c.SaveMessage(testMessage("m3", "random", base)); err != nil {
				t.Fatalf("SaveMessage: %v", err)
			}

			msgs, err := c.MessagesByChannel("general")
			if err != nil {
				t.Fatalf("MessagesByChannel: %v", err)
			}
			if len(msgs) != 2 {
				t.Fatalf("expected 2 messages, got %d", len(msgs))
			}
			if msgs[0].ID != "m1" || msgs[1].ID != "m2" {
				t.Fatalf("order = %s, %s", msgs[0].ID, msgs[1].ID)
			}
		})
	}
}

func TestSaveUpsertsByID(t *testing.T) {
	for name, c := range caches(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Now().UTC().Truncate(time.Second)

			first := testMessage("m1", "general", base)
			first.Status = domain.StatusSending
			if err := c.SaveMessage(first); err != nil {
				t.Fatalf("SaveMessage: %v", err)
			}

			echo := testMessage("m1", "general", base)
			echo.Status = domain.StatusDelivered
			echo.Text = "edited"
			if err := c.SaveMessage(echo); err != nil {
				t.Fatalf("SaveMessage: %v", err)
			}

			msgs, err := c.MessagesByChannel("general")
			if err != nil {
				t.Fatalf("MessagesByChannel: %v", err)
			}
			if len(msgs) != 1 {
				t.Fatalf("upsert grew the log to %d entries", len(msgs))
			}
			if msgs[0].Status != domain.StatusDelivered || msgs[0].Text != "edited" {
				t.Fatalf("stale copy survived: %+v", msgs[0])
			}
		})
	}
}

func TestSaveRejectsIncompleteMessage(t *testing.T) {
	for name, c := range caches(t) {
		t.Run(name, func(t *testing.T) {
			if err := c.SaveMessage(domain.Message{ID: "m1"}); err == nil {
				t.Fatal("expected error for message without channel")
			}
			if err := c.SaveMessage(domain.Message{ChannelID: "general"}); err == nil {
				t.Fatal("expected error for message without id")
			}
		})
	}
}

func TestEmptyChannelReturnsNoMessages(t *testing.T) {
	for name, c := range caches(t) {
		t.Run(name, func(t *testing.T) {
			msgs, err := c.MessagesByChannel("general")
			if err != nil {
				t.Fatalf("MessagesByChannel: %v", err)
			}
			if len(msgs) != 0 {
				t.Fatalf("expected no messages, got %d", len(msgs))
			}
		})
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	for name, c := range caches(t) {
		t.Run(name, func(t *testing.T) {
			if got, err := c.Setting("user_name"); err != nil || got != "" {
				t.Fatalf("missing setting = %q, %v", got, err)
			}
			if err := c.SetSetting("user_name", "Ana"); err != nil {
				t.Fatalf("SetSetting: %v", err)
			}
			if err := c.SetSetting("user_name", "Bo"); err != nil {
				t.Fatalf("SetSetting overwrite: %v", err)
			}
			got, err := c.Setting("user_name")
			if err != nil {
				t.Fatalf("Setting: %v", err)
			}
			if got != "Bo" {
				t.Fatalf("setting = %q, want Bo", got)
			}
		})
	}
}

func TestChannelPrefixesDoNotBleed(t *testing.T) {
	for name, c := range caches(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Now().UTC()
			// "general" is a prefix of no other default channel, so craft one.
			if err := c.SaveMessage(testMessage("m1", "dev", base)); err != nil {
				t.Fatalf("SaveMessage: %v", err)
			}
			if err := c.SaveMessage(testMessage("m2", "development", base)); err != nil {
				t.Fatalf("SaveMessage: %v", err)
			}

			msgs, err := c.MessagesByChannel("dev")
			if err != nil {
				t.Fatalf("MessagesByChannel: %v", err)
			}
			if len(msgs) != 1 || msgs[0].ID != "m1" {
				t.Fatalf("prefix bleed: %+v", msgs)
			}
		})
	}
}
