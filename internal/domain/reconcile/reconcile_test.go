package reconcile_test

import (
	"testing"
	"time"

	"github.com/sadwik-learner/feedsync/internal/domain/model"
	"github.com/sadwik-learner/feedsync/internal/domain/reconcile"
	. "github.com/smartystreets/goconvey/convey"
)

func TestViewOptimisticLifecycle(t *testing.T) {
	Convey("Given a posts view", t, func() {
		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		now := base
		v := reconcile.NewView(model.PostsFeed(), reconcile.WithClock(func() time.Time { return now }))

		Convey("When a post is staged optimistically", func() {
			localID := v.StagePending(model.Entry{
				Kind:        model.KindPost,
				DisplayName: "Anonymous",
				Text:        "hello",
			})

			Convey("Then it appears immediately, tagged pending", func() {
				entries := v.Entries()
				So(entries, ShouldHaveLength, 1)
				So(entries[0].State, ShouldEqual, model.StatePending)
				So(entries[0].LocalID, ShouldEqual, localID)
				So(entries[0].Text, ShouldEqual, "hello")
			})

			Convey("And the matching authoritative entity arrives", func() {
				rendered := v.ApplySnapshot([]model.Entry{{
					ID:          "p1",
					Kind:        model.KindPost,
					DisplayName: "Anonymous",
					Text:        "hello",
					CreatedAt:   base.Add(50 * time.Millisecond),
				}})

				Convey("Then exactly one confirmed entry remains", func() {
					So(rendered, ShouldHaveLength, 1)
					So(rendered[0].ID, ShouldEqual, "p1")
					So(rendered[0].State, ShouldEqual, model.StateConfirmed)
					So(v.PendingCount(), ShouldEqual, 0)
				})
			})

			Convey("And the write call fails", func() {
				rolled := v.Fail(localID)

				Convey("Then the pending entry is removed", func() {
					So(rolled, ShouldBeTrue)
					So(v.Entries(), ShouldBeEmpty)
					So(v.PendingCount(), ShouldEqual, 0)
				})

				Convey("And a second rollback is a no-op", func() {
					So(v.Fail(localID), ShouldBeFalse)
				})
			})
		})

		Convey("When a snapshot arrives with no staged entries", func() {
			rendered := v.ApplySnapshot([]model.Entry{
				{ID: "p2", Kind: model.KindPost, Text: "b", CreatedAt: base.Add(2 * time.Second)},
				{ID: "p1", Kind: model.KindPost, Text: "a", CreatedAt: base.Add(time.Second)},
			})

			Convey("Then entries render newest first", func() {
				So(rendered, ShouldHaveLength, 2)
				So(rendered[0].ID, ShouldEqual, "p2")
				So(rendered[1].ID, ShouldEqual, "p1")
			})
		})
	})
}

func TestViewMergeRuleBounds(t *testing.T) {
	Convey("Given a posts view with a short match window", t, func() {
		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		now := base
		v := reconcile.NewView(model.PostsFeed(),
			reconcile.WithClock(func() time.Time { return now }),
			reconcile.WithMatchWindow(time.Second),
		)

		localID := v.StagePending(model.Entry{Kind: model.KindPost, DisplayName: "A", Text: "x"})
		So(localID, ShouldNotBeEmpty)

		Convey("When the echo arrives after the window", func() {
			now = base.Add(5 * time.Second)
			rendered := v.ApplySnapshot([]model.Entry{{
				ID: "p1", Kind: model.KindPost, DisplayName: "A", Text: "x", CreatedAt: base,
			}})

			Convey("Then the stale pending entry is not matched", func() {
				So(v.PendingCount(), ShouldEqual, 1)
				So(rendered, ShouldHaveLength, 2)
			})
		})

		Convey("When the snapshot entity differs in author", func() {
			rendered := v.ApplySnapshot([]model.Entry{{
				ID: "p1", Kind: model.KindPost, DisplayName: "B", Text: "x", CreatedAt: base,
			}})

			Convey("Then the pending entry stays pending", func() {
				So(v.PendingCount(), ShouldEqual, 1)
				So(rendered, ShouldHaveLength, 2)
			})
		})

		Convey("When the snapshot entity differs only in surrounding whitespace", func() {
			v.ApplySnapshot([]model.Entry{{
				ID: "p1", Kind: model.KindPost, DisplayName: "A", Text: "  x  ", CreatedAt: base,
			}})

			Convey("Then the pending entry is confirmed", func() {
				So(v.PendingCount(), ShouldEqual, 0)
			})
		})
	})
}

func TestViewCommentsAscending(t *testing.T) {
	Convey("Given a comments view", t, func() {
		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		v := reconcile.NewView(model.CommentsFeed("p1"))

		rendered := v.ApplySnapshot([]model.Entry{
			{ID: "c2", Kind: model.KindComment, ParentID: "p1", CreatedAt: base.Add(time.Second)},
			{ID: "c1", Kind: model.KindComment, ParentID: "p1", CreatedAt: base},
		})

		Convey("Then entries render oldest first", func() {
			So(rendered[0].ID, ShouldEqual, "c1")
			So(rendered[1].ID, ShouldEqual, "c2")
		})
	})
}

func TestViewPendingInterleavesByProvisionalKey(t *testing.T) {
	Convey("Given a posts view with confirmed history", t, func() {
		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		now := base.Add(time.Minute)
		v := reconcile.NewView(model.PostsFeed(), reconcile.WithClock(func() time.Time { return now }))

		v.ApplySnapshot([]model.Entry{
			{ID: "p1", Kind: model.KindPost, Text: "old", CreatedAt: base},
		})

		Convey("When a new entry is staged", func() {
			v.StagePending(model.Entry{Kind: model.KindPost, DisplayName: "A", Text: "new"})

			Convey("Then the pending entry sorts ahead by provisional timestamp", func() {
				entries := v.Entries()
				So(entries, ShouldHaveLength, 2)
				So(entries[0].State, ShouldEqual, model.StatePending)
				So(entries[1].ID, ShouldEqual, "p1")
			})
		})
	})
}
