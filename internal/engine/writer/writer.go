// Package writer validates and submits mutations: new posts, comments,
// skill listings, chat messages, profiles, and atomic like increments.
// Ordering timestamps are always assigned by the store at commit time;
// the caller's clock is never trusted.
package writer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sadwik-learner/feedsync/internal/adapters/docstore"
	"github.com/sadwik-learner/feedsync/internal/domain/identity"
	"github.com/sadwik-learner/feedsync/internal/domain/model"
	"github.com/sadwik-learner/feedsync/pkg/logger"
	"github.com/sadwik-learner/feedsync/pkg/metrics"
)

// CreatePostRequest carries one new post.
type CreatePostRequest struct {
	Text      string
	Anonymous bool
}

// CreateCommentRequest carries one new comment on an existing post.
type CreateCommentRequest struct {
	PostID    string
	Text      string
	Anonymous bool
}

// CreateSkillRequest carries one new skill listing.
type CreateSkillRequest struct {
	Title       string
	Description string
	Anonymous   bool
}

// CreateMessageRequest carries one chat message.
type CreateMessageRequest struct {
	Text      string
	Anonymous bool
}

// CreateProfileRequest carries the signup profile of a principal.
type CreateProfileRequest struct {
	Role      string
	Branch    string
	Bio       string
	Skills    string
	Interests string
	Contact   string
}

// Coordinator submits validated writes to the document store. It never
// auto-retries a failed write; duplicate submission is the caller's call.
type Coordinator struct {
	store    docstore.Store
	resolver *identity.Resolver
	log      logger.Logger
}

// NewCoordinator creates a write coordinator.
func NewCoordinator(store docstore.Store, resolver *identity.Resolver, log logger.Logger) *Coordinator {
	return &Coordinator{
		store:    store,
		resolver: resolver,
		log:      log.Named("writer"),
	}
}

// CreatePost submits a new post and returns its store-assigned id.
func (c *Coordinator) CreatePost(ctx context.Context, principal *model.Principal, req CreatePostRequest) (string, error) {
	if principal == nil {
		return "", c.reject(model.KindPost, ErrUnauthorized)
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return "", c.reject(model.KindPost, fmt.Errorf("%w: post text must not be empty", ErrValidation))
	}

	id := c.resolver.Resolve(*principal, req.Anonymous)
	return c.create(ctx, model.KindPost, model.CollectionPosts, docstore.Fields{
		model.FieldText:      text,
		model.FieldUserName:  id.Name,
		model.FieldUserID:    principal.ID,
		model.FieldLikes:     int64(0),
		model.FieldCreatedAt: docstore.ServerTimestamp,
	})
}

// CreateComment submits a new comment on postID.
func (c *Coordinator) CreateComment(ctx context.Context, principal *model.Principal, req CreateCommentRequest) (string, error) {
	if principal == nil {
		return "", c.reject(model.KindComment, ErrUnauthorized)
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return "", c.reject(model.KindComment, fmt.Errorf("%w: comment text must not be empty", ErrValidation))
	}

	if _, err := c.store.Lookup(ctx, model.CollectionPosts, req.PostID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return "", c.reject(model.KindComment, fmt.Errorf("%w: post %s", ErrNotFound, req.PostID))
		}
		return "", c.reject(model.KindComment, fmt.Errorf("%w: %v", ErrTransport, err))
	}

	id := c.resolver.Resolve(*principal, req.Anonymous)
	return c.create(ctx, model.KindComment, model.CollectionComments, docstore.Fields{
		model.FieldPostID:    req.PostID,
		model.FieldText:      text,
		model.FieldUserName:  id.Name,
		model.FieldCreatedAt: docstore.ServerTimestamp,
	})
}

// IncrementLike applies a store-native +1 to a post's like counter. The
// increment commutes, so concurrent likers all land.
func (c *Coordinator) IncrementLike(ctx context.Context, principal *model.Principal, postID string) error {
	if principal == nil {
		return c.reject(model.KindPost, ErrUnauthorized)
	}

	err := c.store.AtomicIncrement(ctx, model.CollectionPosts, postID, model.FieldLikes, 1)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return c.reject(model.KindPost, fmt.Errorf("%w: post %s", ErrNotFound, postID))
	case err != nil:
		return c.reject(model.KindPost, fmt.Errorf("%w: %v", ErrTransport, err))
	}

	metrics.RecordLikeIncrement()
	return nil
}

// CreateSkillListing submits a new skill listing.
func (c *Coordinator) CreateSkillListing(ctx context.Context, principal *model.Principal, req CreateSkillRequest) (string, error) {
	if principal == nil {
		return "", c.reject(model.KindSkill, ErrUnauthorized)
	}
	title := strings.TrimSpace(req.Title)
	description := strings.TrimSpace(req.Description)
	if title == "" {
		return "", c.reject(model.KindSkill, fmt.Errorf("%w: skill title must not be empty", ErrValidation))
	}
	if description == "" {
		return "", c.reject(model.KindSkill, fmt.Errorf("%w: skill description must not be empty", ErrValidation))
	}

	id := c.resolver.Resolve(*principal, req.Anonymous)
	return c.create(ctx, model.KindSkill, model.CollectionSkills, docstore.Fields{
		model.FieldTitle:       title,
		model.FieldDescription: description,
		model.FieldUserName:    id.Name,
		model.FieldCreatedAt:   docstore.ServerTimestamp,
	})
}

// CreateMessage submits a chat message with both name and contact masked
// when anonymous.
func (c *Coordinator) CreateMessage(ctx context.Context, principal *model.Principal, req CreateMessageRequest) (string, error) {
	if principal == nil {
		return "", c.reject(model.KindMessage, ErrUnauthorized)
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return "", c.reject(model.KindMessage, fmt.Errorf("%w: message text must not be empty", ErrValidation))
	}

	id := c.resolver.Resolve(*principal, req.Anonymous)
	return c.create(ctx, model.KindMessage, model.CollectionMessages, docstore.Fields{
		model.FieldText:      text,
		model.FieldUserName:  id.Name,
		model.FieldUserEmail: id.Contact,
		model.FieldCreatedAt: docstore.ServerTimestamp,
	})
}

// CreateProfile writes the signup profile for the principal.
func (c *Coordinator) CreateProfile(ctx context.Context, principal *model.Principal, req CreateProfileRequest) (string, error) {
	if principal == nil {
		return "", c.reject(model.KindProfile, ErrUnauthorized)
	}

	return c.create(ctx, model.KindProfile, model.CollectionProfiles, docstore.Fields{
		model.FieldUID:       principal.ID,
		model.FieldName:      principal.DisplayName,
		model.FieldEmail:     principal.Email,
		model.FieldRole:      strings.TrimSpace(req.Role),
		model.FieldBranch:    strings.TrimSpace(req.Branch),
		model.FieldBio:       strings.TrimSpace(req.Bio),
		model.FieldSkills:    strings.TrimSpace(req.Skills),
		model.FieldInterests: strings.TrimSpace(req.Interests),
		model.FieldContact:   strings.TrimSpace(req.Contact),
		model.FieldCreatedAt: docstore.ServerTimestamp,
	})
}

// ProfileOf fetches the profile written for a principal id, using the
// store's one-field equality filter.
func (c *Coordinator) ProfileOf(ctx context.Context, principalID string) (model.Profile, error) {
	sub, err := c.store.Subscribe(ctx, docstore.Query{
		Collection:  model.CollectionProfiles,
		FilterField: model.FieldUID,
		FilterValue: principalID,
		OrderField:  model.FieldCreatedAt,
	})
	if err != nil {
		return model.Profile{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer sub.Close()

	select {
	case batch, ok := <-sub.Batches():
		if !ok {
			return model.Profile{}, fmt.Errorf("%w: %v", ErrTransport, sub.Err())
		}
		if len(batch.Docs) == 0 {
			return model.Profile{}, fmt.Errorf("%w: profile for %s", ErrNotFound, principalID)
		}
		doc := batch.Docs[0]
		return model.Profile{
			ID:          doc.ID,
			PrincipalID: doc.Str(model.FieldUID),
			Name:        doc.Str(model.FieldName),
			Email:       doc.Str(model.FieldEmail),
			Role:        doc.Str(model.FieldRole),
			Branch:      doc.Str(model.FieldBranch),
			Bio:         doc.Str(model.FieldBio),
			Skills:      doc.Str(model.FieldSkills),
			Interests:   doc.Str(model.FieldInterests),
			Contact:     doc.Str(model.FieldContact),
			CreatedAt:   doc.Time(model.FieldCreatedAt),
		}, nil
	case <-ctx.Done():
		return model.Profile{}, ctx.Err()
	}
}

// create commits one document and records write metrics.
func (c *Coordinator) create(ctx context.Context, kind model.Kind, collection string, fields docstore.Fields) (string, error) {
	start := time.Now()
	id, err := c.store.Create(ctx, collection, fields)
	metrics.RecordWriteLatency(float64(time.Since(start).Milliseconds()))

	if err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrTransport, err)
		c.log.Error(ctx, "write failed",
			logger.String("kind", string(kind)),
			logger.Error(err),
		)
		metrics.RecordWriteError(string(kind), Classify(wrapped))
		return "", wrapped
	}

	metrics.RecordWrite(string(kind))
	c.log.Debug(ctx, "write committed",
		logger.String("kind", string(kind)),
		logger.String("id", id),
	)
	return id, nil
}

func (c *Coordinator) reject(kind model.Kind, err error) error {
	metrics.RecordWriteError(string(kind), Classify(err))
	return err
}
