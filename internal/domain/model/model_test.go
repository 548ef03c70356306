package model

import (
	"testing"
	"time"
)

func TestSelectorKey(t *testing.T) {
	tests := []struct {
		name     string
		selector Selector
		want     string
	}{
		{"posts", PostsFeed(), "post"},
		{"skills", SkillsFeed(), "skill"},
		{"messages", MessagesFeed(), "message"},
		{"comments", CommentsFeed("p1"), "comment/p1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.selector.Key(); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSelectorAscending(t *testing.T) {
	if PostsFeed().Ascending() {
		t.Error("posts feed must read newest first")
	}
	if SkillsFeed().Ascending() {
		t.Error("skills feed must read newest first")
	}
	if !CommentsFeed("p1").Ascending() {
		t.Error("comments feed must read oldest first")
	}
	if !MessagesFeed().Ascending() {
		t.Error("messages feed must read oldest first")
	}
}

func TestEntryBefore(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Second)

	a := Entry{ID: "a", CreatedAt: t0}
	b := Entry{ID: "b", CreatedAt: t1}
	if !a.Before(b) {
		t.Error("earlier timestamp must sort first")
	}
	if b.Before(a) {
		t.Error("later timestamp must not sort first")
	}

	// Equal timestamps break ties on id.
	c := Entry{ID: "c", CreatedAt: t0}
	if !a.Before(c) || c.Before(a) {
		t.Error("id tiebreak must be deterministic")
	}
}

func TestEntryBeforePendingTiebreak(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	pending := Entry{LocalID: "local-1", CreatedAt: t0, State: StatePending}
	confirmed := Entry{ID: "p9", CreatedAt: t0, State: StateConfirmed}

	// Both orderings must be consistent with each other.
	if pending.Before(confirmed) == confirmed.Before(pending) {
		t.Error("pending/confirmed tiebreak must be a strict order")
	}
}
