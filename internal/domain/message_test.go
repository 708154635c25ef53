package domain

import "testing"

func TestToggleReaction(t *testing.T) {
	var m Message

	m.ToggleReaction("👍", "u1")
	m.ToggleReaction("👍", "u2")
	if got := m.ReactionCount("👍"); got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}

	// Same user toggles off.
	m.ToggleReaction("👍", "u1")
	if got := m.ReactionCount("👍"); got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}
	if m.Reactions["👍"][0] != "u2" {
		t.Fatalf("wrong user removed: %v", m.Reactions["👍"])
	}

	// Last user off drops the key entirely.
	m.ToggleReaction("👍", "u2")
	if _, ok := m.Reactions["👍"]; ok {
		t.Fatal("empty reaction set kept in map")
	}
}

func TestToggleReactionKeepsEmojiSetsIndependent(t *testing.T) {
	var m Message
	m.ToggleReaction("👍", "u1")
	m.ToggleReaction("🔥", "u1")
	m.ToggleReaction("👍", "u1")

	if m.ReactionCount("🔥") != 1 || m.ReactionCount("👍") != 0 {
		t.Fatalf("reactions = %v", m.Reactions)
	}
}

func TestStatusAtLeast(t *testing.T) {
	if !StatusDelivered.AtLeast(StatusSending) {
		t.Fatal("delivered should be at least sending")
	}
	if !StatusSent.AtLeast(StatusSent) {
		t.Fatal("status should be at least itself")
	}
	if StatusSending.AtLeast(StatusSent) {
		t.Fatal("sending is not at least sent")
	}
}
