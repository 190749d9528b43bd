package session

import (
	"github.com/tonimelisma/learnsync/internal/contentid"
)

// MaxVideoPoints is the most points a single video can be worth.
const MaxVideoPoints = 750

// Item is a catalog content item (video or article). Only the reconciler
// writes the progress fields; the catalog supplies the rest.
type Item struct {
	ID         contentid.ID
	Kind       contentid.Kind
	ExternalID string // youtube id for videos
	Title      string
	Duration   int // seconds, videos only

	Points            int
	Completed         bool
	Started           bool
	LastSecondWatched int
}

// IsVideo reports whether the item is a video.
func (it Item) IsVideo() bool {
	return it.Kind == contentid.KindVideo
}

// ClampPoints bounds p to [0, MaxVideoPoints].
func ClampPoints(p int) int {
	return max(0, min(MaxVideoPoints, p))
}

// hydrate returns it with its progress fields derived from u. Items the user
// has no record for keep their catalog values for points and position.
func hydrate(it Item, u User) Item {
	it.Completed = u.IsCompleted(it.ID)
	it.Started = !it.Completed && u.IsStarted(it.ID)

	if rec, ok := u.WatchRecord(it.ID); ok {
		it.LastSecondWatched = rec.LastSecondWatched
		it.Points = ClampPoints(rec.Points)
	}

	return it
}

// resetProgress clears every per-user field of it.
func resetProgress(it Item) Item {
	it.Points = 0
	it.Completed = false
	it.Started = false
	it.LastSecondWatched = 0

	return it
}
