package client

import (
	"sort"

	"go.uber.org/zap"

	"github.com/teamchat/teamchat/internal/domain"
	"github.com/teamchat/teamchat/internal/store"
)

// Merge reconciles an incoming message batch with the current local
// sequence. Messages are keyed by identity; an incoming message replaces the
// local copy, except that delivery status never moves backwards (a server
// echo promotes an optimistic message, it cannot demote one). The result is
// ordered by creation instant ascending with the id as tie-break.
//
// Merge is a pure function of its inputs and is idempotent: merging the same
// batch twice yields the same sequence.
func Merge(current, incoming []domain.Message) []domain.Message {
	byID := make(map[string]domain.Message, len(current)+len(incoming))
	for _, m := range current {
		byID[m.ID] = m
	}
	for _, m := range incoming {
		if existing, ok := byID[m.ID]; ok && existing.Status.AtLeast(m.Status) {
			m.Status = existing.Status
		}
		byID[m.ID] = m
	}

	merged := make([]domain.Message, 0, len(byID))
	for _, m := range byID {
		merged = append(merged, m)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].ID < merged[j].ID
		}
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})
	return merged
}

// Reconciler merges incoming batches and persists each incoming message to
// the cache collaborator. Cache failures are logged and never block the
// message flow.
type Reconciler struct {
	cache store.MessageCache
	log   *zap.Logger
}

func NewReconciler(cache store.MessageCache, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{cache: cache, log: log}
}

// Apply merges incoming into current and writes the incoming messages
// through to the cache.
func (r *Reconciler) Apply(current, incoming []domain.Message) []domain.Message {
	merged := Merge(current, incoming)
	if r.cache != nil {
		for _, m := range incoming {
			if err := r.cache.SaveMessage(m); err != nil {
				r.log.Warn("cache write failed",
					zap.String("message", m.ID),
					zap.Error(err))
			}
		}
	}
	return merged
}

// Cached loads the cached sequence for a channel. Failures degrade to an
// empty list so first render never hangs on the cache.
func (r *Reconciler) Cached(channelID string) []domain.Message {
	if r.cache == nil {
		return nil
	}
	msgs, err := r.cache.MessagesByChannel(channelID)
	if err != nil {
		r.log.Warn("cache read failed",
			zap.String("channel", channelID),
			zap.Error(err))
		return nil
	}
	return msgs
}
