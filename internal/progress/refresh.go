package progress

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/learnsync/internal/mirror"
	"github.com/tonimelisma/learnsync/internal/remote"
	"github.com/tonimelisma/learnsync/internal/session"
)

// RefreshOutcome summarises a bulk refresh. SignedIn is false when skipped.
type RefreshOutcome struct {
	SignedIn bool
	Profile  session.Profile

	// UsedCache is true when the cached started/completed sets were trusted
	// and only the profile was fetched.
	UsedCache bool

	Started       int
	Completed     int
	WatchRecords  int
	ExerciseStats int
}

// RefreshLoggedInInfo fetches and persists the profile. Unless force is
// false and started/completed sets are already cached for the account, it
// then fetches the progress summary, watch records and exercise stats
// concurrently and merges them in one step. Concurrent calls with the same
// force value share one execution.
func (r *Reconciler) RefreshLoggedInInfo(ctx context.Context, force bool) (*RefreshOutcome, error) {
	if !r.auth.IsSignedIn() {
		return &RefreshOutcome{}, nil
	}

	v, err, shared := r.refreshGroup.Do("refresh-"+strconv.FormatBool(force), func() (any, error) {
		return r.refresh(ctx, force)
	})
	if err != nil {
		return nil, err
	}

	if shared {
		r.logger.Debug("refresh shared with concurrent caller")
	}

	out := *v.(*RefreshOutcome)

	return &out, nil
}

func (r *Reconciler) refresh(ctx context.Context, force bool) (*RefreshOutcome, error) {
	profile, err := r.remote.UserInfo(ctx)
	if err != nil {
		return nil, classifyRemote("fetching user info", err)
	}

	cached, base, err := r.commitProfile(ctx, profile)
	if err != nil {
		return nil, err
	}

	if !force && cached.Has(mirror.FieldStarted|mirror.FieldCompleted) {
		r.logger.Info("profile refreshed, progress served from cache",
			slog.String("nickname", profile.Nickname),
		)

		return &RefreshOutcome{
			SignedIn:      true,
			Profile:       profile,
			UsedCache:     true,
			Started:       len(cached.Started),
			Completed:     len(cached.Completed),
			WatchRecords:  len(cached.WatchRecords),
			ExerciseStats: len(cached.ExerciseStats),
		}, nil
	}

	fetched, err := r.fetchAll(ctx)
	if err != nil {
		return nil, err
	}

	var u session.User

	_, err = r.session.Transact(func(snap session.Snapshot) (session.Snapshot, error) {
		if !sameAccount(snap.User.Profile, profile) {
			return snap, ErrAccountChanged
		}

		u = mergeRefreshed(base, snap.User, fetched)

		fields := mirror.FieldProfile | mirror.FieldStarted | mirror.FieldCompleted |
			mirror.FieldWatchRecords | mirror.FieldExerciseStats
		if err := r.mirror.SaveAll(ctx, *u.Profile, mirror.AggregatesFromUser(u, fields)); err != nil {
			return snap, fmt.Errorf("progress: persisting refreshed progress: %w", err)
		}

		return snap.WithUser(u).Hydrated(), nil
	})
	if err != nil {
		return nil, err
	}

	out := &RefreshOutcome{
		SignedIn:      true,
		Profile:       *u.Profile,
		Started:       len(u.Started),
		Completed:     len(u.Completed),
		WatchRecords:  len(u.WatchRecords),
		ExerciseStats: len(u.ExerciseStats),
	}

	r.logger.Info("progress refreshed",
		slog.String("nickname", profile.Nickname),
		slog.Int("started", out.Started),
		slog.Int("completed", out.Completed),
		slog.Int("watch_records", out.WatchRecords),
		slog.Int("exercise_stats", out.ExerciseStats),
	)

	return out, nil
}

// commitProfile persists profile and publishes it. When the session held a
// different account (or none), the user's aggregates are replaced by that
// account's cached values. Returns what the mirror holds for the account and
// the user as committed.
func (r *Reconciler) commitProfile(ctx context.Context, profile session.Profile) (mirror.Cached, session.User, error) {
	var cached mirror.Cached

	snap, err := r.session.Transact(func(snap session.Snapshot) (session.Snapshot, error) {
		var err error

		cached, err = r.mirror.LoadAll(ctx, profile)
		if err != nil {
			return snap, fmt.Errorf("progress: loading cached progress: %w", err)
		}

		if err := r.mirror.SaveProfile(ctx, profile); err != nil {
			return snap, fmt.Errorf("progress: persisting profile: %w", err)
		}

		u := snap.User
		if !sameAccount(u.Profile, profile) {
			u = userFromCache(cached)
		}

		u.Profile = &profile

		return snap.WithUser(u.Normalized()).Hydrated(), nil
	})
	if err != nil {
		return mirror.Cached{}, session.User{}, err
	}

	return cached, snap.User, nil
}

// mergeRefreshed lays the fetched aggregates over cur. Changes cur gained
// after base was committed came from reports that raced the fetch and are
// kept: new started and completed ids, watch records (higher position and
// points win) and the profile's points. Exercise stats are taken as fetched.
func mergeRefreshed(base, cur session.User, fetched fetchedProgress) session.User {
	u := cur
	u.Started = fetched.progress.Started
	u.Completed = fetched.progress.Completed
	u.WatchRecords = fetched.videos
	u.ExerciseStats = fetched.exercises

	for _, id := range slices.Backward(cur.Completed) {
		if !base.IsCompleted(id) {
			u.Completed = session.InsertIfAbsent(u.Completed, id)
		}
	}

	for _, id := range slices.Backward(cur.Started) {
		if !base.IsStarted(id) {
			u.Started = session.InsertIfAbsent(u.Started, id)
		}
	}

	for _, local := range slices.Backward(cur.WatchRecords) {
		if prev, ok := base.WatchRecord(local.VideoID); ok && prev == local {
			continue
		}

		if rec, ok := u.WatchRecord(local.VideoID); ok {
			local.LastSecondWatched = max(local.LastSecondWatched, rec.LastSecondWatched)
			local.Points = max(local.Points, rec.Points)
		}

		u = u.UpsertWatchRecord(local)
	}

	return u.Normalized()
}

type fetchedProgress struct {
	progress  remote.Progress
	videos    []session.WatchRecord
	exercises []session.ExerciseStat
}

// fetchAll runs the three bulk fetches concurrently. The first failure
// cancels the others.
func (r *Reconciler) fetchAll(ctx context.Context) (fetchedProgress, error) {
	var f fetchedProgress

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		p, err := r.remote.UserProgress(gctx)
		if err != nil {
			return classifyRemote("fetching progress summary", err)
		}

		f.progress = p

		return nil
	})

	g.Go(func() error {
		v, err := r.remote.UserVideos(gctx)
		if err != nil {
			return classifyRemote("fetching watch records", err)
		}

		f.videos = v

		return nil
	})

	g.Go(func() error {
		e, err := r.remote.UserExercises(gctx)
		if err != nil {
			return classifyRemote("fetching exercise stats", err)
		}

		f.exercises = e

		return nil
	})

	if err := g.Wait(); err != nil {
		return fetchedProgress{}, err
	}

	return f, nil
}

// Restore loads the current profile and its cached aggregates from the
// mirror into the session. It makes no network calls. Returns false when
// nothing was cached.
func (r *Reconciler) Restore(ctx context.Context) (bool, error) {
	profile, found, err := r.mirror.LoadCurrentProfile(ctx)
	if err != nil {
		return false, fmt.Errorf("progress: loading current profile: %w", err)
	}

	if !found {
		r.logger.Debug("no cached profile to restore")
		return false, nil
	}

	cached, err := r.mirror.LoadAll(ctx, profile)
	if err != nil {
		return false, fmt.Errorf("progress: loading cached progress: %w", err)
	}

	u := userFromCache(cached).Normalized()
	u.Profile = &profile

	_, err = r.session.Transact(func(snap session.Snapshot) (session.Snapshot, error) {
		return snap.WithUser(u).Hydrated(), nil
	})
	if err != nil {
		return false, err
	}

	r.logger.Info("restored cached progress",
		slog.String("nickname", profile.Nickname),
		slog.Int("started", len(u.Started)),
		slog.Int("completed", len(u.Completed)),
		slog.Int("watch_records", len(u.WatchRecords)),
	)

	return true, nil
}

func userFromCache(c mirror.Cached) session.User {
	return session.User{
		Started:       c.Started,
		Completed:     c.Completed,
		WatchRecords:  c.WatchRecords,
		ExerciseStats: c.ExerciseStats,
	}
}

func sameAccount(current *session.Profile, next session.Profile) bool {
	if current == nil {
		return false
	}

	a, errA := mirror.Namespace(*current)
	b, errB := mirror.Namespace(next)

	return errA == nil && errB == nil && a == b
}
