package model

import "time"

// Selector identifies one feed: an entity kind plus, for comments, the
// owning post. Two selectors with the same Key observe the same feed.
type Selector struct {
	Kind     Kind
	ParentID string
}

// PostsFeed selects all posts, newest first.
func PostsFeed() Selector { return Selector{Kind: KindPost} }

// CommentsFeed selects the comments of one post, oldest first.
func CommentsFeed(postID string) Selector {
	return Selector{Kind: KindComment, ParentID: postID}
}

// SkillsFeed selects all skill listings, newest first.
func SkillsFeed() Selector { return Selector{Kind: KindSkill} }

// MessagesFeed selects all chat messages, oldest first.
func MessagesFeed() Selector { return Selector{Kind: KindMessage} }

// Key returns the deduplication key for this selector.
func (s Selector) Key() string {
	if s.ParentID == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + "/" + s.ParentID
}

// Ascending reports the display order for this feed. Comments and chat
// messages read oldest first; posts and skills read newest first.
func (s Selector) Ascending() bool {
	return s.Kind == KindComment || s.Kind == KindMessage
}

// EntryState tracks the reconciliation state of a feed entry.
type EntryState string

// Entry states. Failed entries never appear in a rendered feed; the state
// exists only for resolution callbacks.
const (
	StatePending   EntryState = "pending"
	StateConfirmed EntryState = "confirmed"
	StateFailed    EntryState = "failed"
)

// Entry is the uniform shape a rendered feed is made of. Confirmed entries
// mirror an authoritative document; pending entries carry a provisional
// ordering key until the store echoes them back.
type Entry struct {
	ID          string
	LocalID     string
	Kind        Kind
	ParentID    string
	DisplayName string
	Contact     string
	Text        string
	Title       string
	Description string
	CreatedAt   time.Time
	LikeCount   int64
	State       EntryState
}

// Before reports whether e sorts ahead of other in an ascending feed.
// The ordering key is (createdAt, id); the id tiebreak keeps equal
// timestamps deterministic. Descending feeds invert the result.
func (e Entry) Before(other Entry) bool {
	if !e.CreatedAt.Equal(other.CreatedAt) {
		return e.CreatedAt.Before(other.CreatedAt)
	}
	return e.sortID() < other.sortID()
}

// sortID falls back to the local id so pending entries still have a
// deterministic tiebreak before the store assigns one.
func (e Entry) sortID() string {
	if e.ID != "" {
		return e.ID
	}
	return e.LocalID
}
