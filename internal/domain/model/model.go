// Package model contains the entities flowing through the feed engine.
package model

import "time"

// Kind identifies the entity type carried by a feed.
type Kind string

// Entity kinds.
const (
	KindPost    Kind = "post"
	KindComment Kind = "comment"
	KindSkill   Kind = "skill"
	KindMessage Kind = "message"
	KindProfile Kind = "profile"
)

// Collection paths in the document store, one flat collection per kind.
const (
	CollectionPosts    = "posts"
	CollectionComments = "comments"
	CollectionSkills   = "skills"
	CollectionMessages = "forumMessages"
	CollectionProfiles = "profiles"
)

// Document field names. These are the wire schema of the store and must not
// change without migrating stored documents.
const (
	FieldText        = "text"
	FieldUserName    = "userName"
	FieldUserEmail   = "userEmail"
	FieldUserID      = "userId"
	FieldCreatedAt   = "createdAt"
	FieldLikes       = "likes"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldPostID      = "postId"
	FieldUID         = "uid"
	FieldName        = "name"
	FieldEmail       = "email"
	FieldRole        = "role"
	FieldBranch      = "branch"
	FieldBio         = "bio"
	FieldSkills      = "skills"
	FieldInterests   = "interests"
	FieldContact     = "contact"
)

// Principal is the authenticated caller as seen at the session boundary.
type Principal struct {
	ID          string
	DisplayName string
	Email       string
}

// DisplayIdentity is the identity embedded in a written entity. It is
// resolved once per write and never re-derived on read.
type DisplayIdentity struct {
	Name    string
	Contact string
}

// Post is a top-level feed entry with a like counter.
type Post struct {
	ID                string
	AuthorPrincipalID string
	DisplayName       string
	Text              string
	CreatedAt         time.Time
	LikeCount         int64
}

// Comment belongs to exactly one post.
type Comment struct {
	ID                string
	PostID            string
	AuthorDisplayName string
	Text              string
	CreatedAt         time.Time
}

// SkillListing is an independent top-level entity.
type SkillListing struct {
	ID                  string
	Title               string
	Description         string
	PostedByDisplayName string
	CreatedAt           time.Time
}

// Message is a chat-style feed entry with masked contact support.
type Message struct {
	ID          string
	DisplayName string
	Contact     string
	Text        string
	CreatedAt   time.Time
}

// Profile holds the signup profile written once per principal.
type Profile struct {
	ID          string
	PrincipalID string
	Name        string
	Email       string
	Role        string
	Branch      string
	Bio         string
	Skills      string
	Interests   string
	Contact     string
	CreatedAt   time.Time
}
