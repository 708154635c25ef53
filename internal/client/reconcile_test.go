package client

import (
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/teamchat/teamchat/internal/domain"
	"github.com/teamchat/teamchat/internal/store"
)

func msg(id string, at time.Time, status domain.MessageStatus, text string) domain.Message {
	return domain.Message{
		ID:        id,
		ChannelID: "general",
		UserID:    "u1",
		UserName:  "Ana",
		Text:      text,
		CreatedAt: at,
		Status:    status,
	}
}

func ids(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestMergeIsIdempotent(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := []domain.Message{
		msg("a", base, domain.StatusDelivered, "one"),
		msg("b", base.Add(time.Second), domain.StatusDelivered, "two"),
	}
	incoming := []domain.Message{
		msg("b", base.Add(time.Second), domain.StatusDelivered, "two"),
		msg("c", base.Add(2*time.Second), domain.StatusDelivered, "three"),
	}

	once := Merge(current, incoming)
	twice := Merge(once, incoming)

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("merge not idempotent:\nonce:  %v\ntwice: %v", ids(once), ids(twice))
	}
	if got := ids(once); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestMergeIncomingWinsOnConflict(t *testing.T) {
	base := time.Now().UTC()
	current := []domain.Message{msg("a", base, domain.StatusSent, "draft")}
	incoming := []domain.Message{msg("a", base, domain.StatusDelivered, "final")}

	merged := Merge(current, incoming)
	if len(merged) != 1 {
		t.Fatalf("expected 1 message, got %d", len(merged))
	}
	if merged[0].Text != "final" || merged[0].Status != domain.StatusDelivered {
		t.Fatalf("incoming should win: %+v", merged[0])
	}
}

func TestMergeStatusNeverRegresses(t *testing.T) {
	base := time.Now().UTC()
	current := []domain.Message{msg("a", base, domain.StatusDelivered, "hi")}
	// A stale batch (e.g. a cache read racing a live echo) carries the old
	// optimistic status.
	incoming := []domain.Message{msg("a", base, domain.StatusSending, "hi")}

	merged := Merge(current, incoming)
	if merged[0].Status != domain.StatusDelivered {
		t.Fatalf("status regressed to %q", merged[0].Status)
	}
}

func TestMergeOrdersByCreationInstant(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := []domain.Message{msg("late", base.Add(time.Minute), domain.StatusDelivered, "x")}
	incoming := []domain.Message{
		msg("early", base, domain.StatusDelivered, "y"),
		msg("mid", base.Add(30*time.Second), domain.StatusDelivered, "z"),
	}

	merged := Merge(current, incoming)
	if got := ids(merged); !reflect.DeepEqual(got, []string{"early", "mid", "late"}) {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestApplyPersistsIncoming(t *testing.T) {
	cache := store.NewMemoryCache()
	rec := NewReconciler(cache, zap.NewNop())
	base := time.Now().UTC()

	incoming := []domain.Message{
		msg("a", base, domain.StatusDelivered, "one"),
		msg("b", base.Add(time.Second), domain.StatusDelivered, "two"),
	}
	rec.Apply(nil, incoming)

	cached, err := cache.MessagesByChannel("general")
	if err != nil {
		t.Fatalf("MessagesByChannel: %v", err)
	}
	if len(cached) != 2 {
		t.Fatalf("expected 2 cached messages, got %d", len(cached))
	}
}

// failingCache always errors; the reconciler must shrug it off.
type failingCache struct{ store.MessageCache }

func (failingCache) SaveMessage(domain.Message) error { return errFail }
func (failingCache) MessagesByChannel(string) ([]domain.Message, error) {
	return nil, errFail
}

var errFail = &cacheError{}

type cacheError struct{}

func (*cacheError) Error() string { return "cache unavailable" }

func TestCacheFailuresNeverBlockMergeOrRead(t *testing.T) {
	rec := NewReconciler(failingCache{}, zap.NewNop())

	merged := rec.Apply(nil, []domain.Message{msg("a", time.Now(), domain.StatusDelivered, "hi")})
	if len(merged) != 1 {
		t.Fatalf("merge result lost on cache failure: %d", len(merged))
	}
	if got := rec.Cached("general"); len(got) != 0 {
		t.Fatalf("failed read should degrade to empty, got %d", len(got))
	}
}
