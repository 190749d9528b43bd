package progress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tonimelisma/learnsync/internal/contentid"
	"github.com/tonimelisma/learnsync/internal/mirror"
	"github.com/tonimelisma/learnsync/internal/remote"
	"github.com/tonimelisma/learnsync/internal/session"
)

// meaningfulMargin is how far (in seconds) from either end of a video the
// server's position must be before it is preferred as a resume point.
const meaningfulMargin = 10

// VideoOutcome summarises one merged video report. A zero outcome with
// SignedIn false means the report was skipped because nobody is signed in.
type VideoOutcome struct {
	SignedIn          bool
	ItemID            contentid.ID
	ExternalID        string
	Completed         bool
	PointsEarned      int
	ItemPoints        int
	LastSecondWatched int
	ReportedAt        time.Time
}

// ReportVideoProgress reports secondsWatched of new watch time for the video
// itemID, with lastSecondWatched as the locally observed position, and
// merges the service's answer into the session and mirror.
func (r *Reconciler) ReportVideoProgress(
	ctx context.Context,
	itemID contentid.ID,
	secondsWatched float64,
	lastSecondWatched int,
) (*VideoOutcome, error) {
	if !r.auth.IsSignedIn() {
		return &VideoOutcome{}, nil
	}

	req, err := r.videoRequest(itemID, secondsWatched, lastSecondWatched)
	if err != nil {
		return nil, err
	}

	report, err := r.fetchVideoReport(ctx, req)
	if err != nil {
		return nil, err
	}

	var out VideoOutcome

	_, err = r.session.Transact(func(snap session.Snapshot) (session.Snapshot, error) {
		item, ok := snap.Item(itemID)
		if !ok {
			return snap, fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
		}

		if snap.User.Profile == nil {
			return snap, ErrNoProfile
		}

		merged := mergeVideoReport(item, snap.User, report, lastSecondWatched)

		if err := r.persistVideo(ctx, merged.user); err != nil {
			return snap, err
		}

		out = merged.outcome
		out.ReportedAt = r.nowFunc()

		return snap.WithUser(merged.user).WithItem(merged.item), nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("video progress merged",
		slog.String("item_id", itemID.String()),
		slog.Int("points_earned", out.PointsEarned),
		slog.Int("item_points", out.ItemPoints),
		slog.Bool("completed", out.Completed),
		slog.Int("last_second_watched", out.LastSecondWatched),
	)

	return &out, nil
}

// videoRequest validates preconditions against the current snapshot.
func (r *Reconciler) videoRequest(itemID contentid.ID, secondsWatched float64, lastSecondWatched int) (remote.VideoProgressRequest, error) {
	if secondsWatched < 0 {
		return remote.VideoProgressRequest{}, fmt.Errorf("%w: %v", ErrNegativeDelta, secondsWatched)
	}

	snap := r.session.Snapshot()

	item, ok := snap.Item(itemID)
	if !ok {
		return remote.VideoProgressRequest{}, fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}

	if !item.IsVideo() {
		return remote.VideoProgressRequest{}, fmt.Errorf("%w: %s is %s", ErrNotVideo, itemID, item.Kind)
	}

	if item.ExternalID == "" {
		return remote.VideoProgressRequest{}, fmt.Errorf("%w: %s", ErrMissingExternalID, itemID)
	}

	if !snap.User.HasProfile() {
		return remote.VideoProgressRequest{}, ErrNoProfile
	}

	return remote.VideoProgressRequest{
		VideoID:           itemID,
		ExternalID:        item.ExternalID,
		SecondsWatched:    secondsWatched,
		LastSecondWatched: max(0, lastSecondWatched),
	}, nil
}

func (r *Reconciler) fetchVideoReport(ctx context.Context, req remote.VideoProgressRequest) (*remote.ProgressReport, error) {
	report, err := r.remote.ReportVideoProgress(ctx, req)
	if err != nil {
		r.logger.Warn("video progress report failed",
			slog.String("item_id", req.VideoID.String()),
			slog.String("error", err.Error()),
		)

		return nil, classifyRemote("reporting video progress", err)
	}

	if report == nil {
		return nil, fmt.Errorf("%w: empty video progress report", ErrMalformedResponse)
	}

	return report, nil
}

func (r *Reconciler) persistVideo(ctx context.Context, u session.User) error {
	fields := mirror.FieldProfile | mirror.FieldStarted | mirror.FieldCompleted | mirror.FieldWatchRecords

	if err := r.mirror.SaveAll(ctx, *u.Profile, mirror.AggregatesFromUser(u, fields)); err != nil {
		return fmt.Errorf("progress: persisting video progress: %w", err)
	}

	return nil
}

// videoMerge is the result of applying one report to an item and user.
type videoMerge struct {
	item    session.Item
	user    session.User
	outcome VideoOutcome
}

// mergeVideoReport applies report to item and u. It does no I/O.
func mergeVideoReport(item session.Item, u session.User, report *remote.ProgressReport, localLast int) videoMerge {
	points := session.ClampPoints(item.Points + report.PointsEarned)
	last := retainedLastSecond(item, report, localLast)

	// Once completed, a later non-completing report does not reopen the item.
	completed := report.IsVideoCompleted || u.IsCompleted(item.ID)

	item.Points = points
	item.Completed = completed
	item.Started = !completed
	item.LastSecondWatched = last

	if completed {
		u = u.MarkCompleted(item.ID)
	} else {
		u = u.MarkStarted(item.ID)
	}

	if report.PointsEarned > 0 && u.Profile != nil {
		p := u.Profile.WithPoints(u.Profile.Points + report.PointsEarned)
		u.Profile = &p
	}

	rec, ok := u.WatchRecord(item.ID)
	if !ok {
		rec = session.WatchRecord{VideoID: item.ID, Duration: item.Duration}
	}

	rec.Points = points
	rec.LastSecondWatched = last
	u = u.UpsertWatchRecord(rec)

	return videoMerge{
		item: item,
		user: u,
		outcome: VideoOutcome{
			SignedIn:          true,
			ItemID:            item.ID,
			ExternalID:        report.ExternalID,
			Completed:         completed,
			PointsEarned:      report.PointsEarned,
			ItemPoints:        points,
			LastSecondWatched: last,
		},
	}
}

// retainedLastSecond picks the resume position to keep. The server's value
// wins when it is more than meaningfulMargin from both ends; otherwise the
// local observation is kept. The position never moves backward unless this
// report completes the video.
func retainedLastSecond(item session.Item, report *remote.ProgressReport, localLast int) int {
	last := max(0, localLast)

	server := report.LastSecondWatched
	if server > meaningfulMargin && item.Duration-server > meaningfulMargin {
		last = server
	}

	if !report.IsVideoCompleted && last < item.LastSecondWatched {
		last = item.LastSecondWatched
	}

	return last
}
