// Package reconcile maintains the locally rendered sequence for one feed:
// the authoritative snapshot plus unconfirmed optimistic entries, ordered
// by the feed's display key.
package reconcile

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sadwik-learner/feedsync/internal/domain/model"
	"github.com/sadwik-learner/feedsync/pkg/metrics"
)

const defaultMatchWindow = 2 * time.Minute

// View is the local reconciliation state for one feed selector.
// All methods are safe for concurrent use.
type View struct {
	mu       sync.Mutex
	selector model.Selector
	window   time.Duration
	now      func() time.Time

	authoritative []model.Entry
	pending       map[string]pendingWrite // by local id
}

type pendingWrite struct {
	entry       model.Entry
	submittedAt time.Time
}

// NewView creates an empty view for a feed selector.
func NewView(selector model.Selector, opts ...Option) *View {
	v := &View{
		selector: selector,
		window:   defaultMatchWindow,
		now:      time.Now,
		pending:  make(map[string]pendingWrite),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// StagePending inserts an optimistic entry at the position its provisional
// wall-clock timestamp would occupy and returns the local id used to
// resolve it later.
func (v *View) StagePending(entry model.Entry) string {
	v.mu.Lock()
	defer v.mu.Unlock()

	localID := uuid.NewString()
	entry.LocalID = localID
	entry.ID = ""
	entry.State = model.StatePending
	entry.CreatedAt = v.now()

	v.pending[localID] = pendingWrite{entry: entry, submittedAt: entry.CreatedAt}
	metrics.UpdatePendingWrites(len(v.pending))
	return localID
}

// ApplySnapshot replaces the authoritative view with a full snapshot and
// applies the merge rule: a pending entry whose content matches an
// authoritative entity within the recency window is confirmed in place,
// its provisional ordering key superseded by the authoritative one.
// Returns the rendered sequence after the merge.
func (v *View) ApplySnapshot(entries []model.Entry) []model.Entry {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.authoritative = make([]model.Entry, len(entries))
	for i, e := range entries {
		e.State = model.StateConfirmed
		v.authoritative[i] = e
		if localID, ok := v.matchPendingLocked(e); ok {
			delete(v.pending, localID)
			metrics.RecordPendingConfirmed()
		}
	}
	metrics.UpdatePendingWrites(len(v.pending))
	return v.renderLocked()
}

// Fail rolls back an optimistic entry after its write call failed.
// Returns false if the entry was already resolved.
func (v *View) Fail(localID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.pending[localID]; !ok {
		return false
	}
	delete(v.pending, localID)
	metrics.RecordPendingRolledBack()
	metrics.UpdatePendingWrites(len(v.pending))
	return true
}

// Entries returns the rendered sequence: the authoritative snapshot plus
// strictly-unconfirmed pending entries, in the feed's display order.
func (v *View) Entries() []model.Entry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.renderLocked()
}

// PendingCount reports the number of unresolved optimistic entries.
func (v *View) PendingCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.pending)
}

// matchPendingLocked finds a pending entry whose content matches an
// authoritative entity: same author, same trimmed text, submitted within
// the recency window.
func (v *View) matchPendingLocked(e model.Entry) (string, bool) {
	for localID, p := range v.pending {
		if p.entry.Kind != e.Kind || p.entry.ParentID != e.ParentID {
			continue
		}
		if p.entry.DisplayName != e.DisplayName {
			continue
		}
		if !sameContent(p.entry, e) {
			continue
		}
		if v.now().Sub(p.submittedAt) > v.window {
			continue
		}
		return localID, true
	}
	return "", false
}

func sameContent(a, b model.Entry) bool {
	return strings.TrimSpace(a.Text) == strings.TrimSpace(b.Text) &&
		strings.TrimSpace(a.Title) == strings.TrimSpace(b.Title) &&
		strings.TrimSpace(a.Description) == strings.TrimSpace(b.Description)
}

func (v *View) renderLocked() []model.Entry {
	out := make([]model.Entry, 0, len(v.authoritative)+len(v.pending))
	out = append(out, v.authoritative...)
	for _, p := range v.pending {
		out = append(out, p.entry)
	}

	ascending := v.selector.Ascending()
	sort.SliceStable(out, func(i, j int) bool {
		if ascending {
			return out[i].Before(out[j])
		}
		return out[j].Before(out[i])
	})
	return out
}
