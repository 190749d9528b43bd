package progress

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/learnsync/internal/contentid"
	"github.com/tonimelisma/learnsync/internal/mirror"
	"github.com/tonimelisma/learnsync/internal/remote"
	"github.com/tonimelisma/learnsync/internal/session"
)

// ArticleOutcome summarises an article-read report. SignedIn is false when
// the report was skipped.
type ArticleOutcome struct {
	SignedIn bool
	ItemID   contentid.ID
	Result   *remote.ArticleReadResult
}

// ReportArticleRead marks the article itemID read remotely and adds it to
// the completed set. Signed out, it returns a neutral outcome without
// calling the service.
func (r *Reconciler) ReportArticleRead(ctx context.Context, itemID contentid.ID) (*ArticleOutcome, error) {
	if !r.auth.IsSignedIn() {
		return &ArticleOutcome{}, nil
	}

	if itemID.IsZero() {
		return nil, fmt.Errorf("%w: empty id", ErrUnknownItem)
	}

	if !r.session.User().HasProfile() {
		return nil, ErrNoProfile
	}

	result, err := r.remote.ReportArticleRead(ctx, itemID)
	if err != nil {
		r.logger.Warn("article read report failed",
			slog.String("item_id", itemID.String()),
			slog.String("error", err.Error()),
		)

		return nil, classifyRemote("reporting article read", err)
	}

	_, err = r.session.Transact(func(snap session.Snapshot) (session.Snapshot, error) {
		if snap.User.Profile == nil {
			return snap, ErrNoProfile
		}

		u := snap.User.MarkCompleted(itemID)

		fields := mirror.FieldStarted | mirror.FieldCompleted
		if err := r.mirror.SaveAll(ctx, *u.Profile, mirror.AggregatesFromUser(u, fields)); err != nil {
			return snap, fmt.Errorf("progress: persisting article read: %w", err)
		}

		next := snap.WithUser(u)

		if item, ok := snap.Item(itemID); ok {
			item.Completed = true
			item.Started = false
			next = next.WithItem(item)
		}

		return next, nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("article read merged", slog.String("item_id", itemID.String()))

	return &ArticleOutcome{SignedIn: true, ItemID: itemID, Result: result}, nil
}
