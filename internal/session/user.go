package session

import (
	"maps"
	"slices"

	"github.com/tonimelisma/learnsync/internal/contentid"
)

// Profile is the signed-in account's public profile as last reported by the
// remote service. Values are treated as immutable; use the With* helpers.
type Profile struct {
	AvatarURL   string         `json:"avatar_url"`
	Joined      string         `json:"joined"`
	Nickname    string         `json:"nickname"`
	Username    string         `json:"username"`
	Points      int            `json:"points"`
	BadgeCounts map[string]int `json:"badge_counts,omitempty"`
}

// Namespace returns the identity used to scope locally cached data: the
// nickname, falling back to the username. Empty when neither is known.
func (p Profile) Namespace() string {
	if p.Nickname != "" {
		return p.Nickname
	}

	return p.Username
}

// WithPoints returns a copy of p with the point total replaced.
func (p Profile) WithPoints(points int) Profile {
	p.BadgeCounts = maps.Clone(p.BadgeCounts)
	p.Points = points

	return p
}

// WatchRecord is the per-video progress entry kept in the user's watch
// record collection.
type WatchRecord struct {
	VideoID           contentid.ID
	Duration          int
	LastSecondWatched int
	Points            int
}

// ExerciseStat is the per-exercise statistic fetched during bulk refresh.
type ExerciseStat struct {
	ContentID    contentid.ID
	Streak       int
	TotalCorrect int
	TotalDone    int
}

// User is the application-wide identity aggregate. A nil Profile means no
// profile is known (signed out, or signed in but never refreshed).
//
// Slices are never mutated in place: every helper returns a fresh slice, so
// snapshots handed to readers stay stable.
type User struct {
	Profile       *Profile
	Started       []contentid.ID
	Completed     []contentid.ID
	WatchRecords  []WatchRecord
	ExerciseStats []ExerciseStat
}

// HasProfile reports whether a profile is loaded.
func (u User) HasProfile() bool {
	return u.Profile != nil
}

// Points returns the profile point total, or 0 without a profile.
func (u User) Points() int {
	if u.Profile == nil {
		return 0
	}

	return u.Profile.Points
}

// IsStarted reports whether id is in the started set.
func (u User) IsStarted(id contentid.ID) bool {
	return Contains(u.Started, id)
}

// IsCompleted reports whether id is in the completed set.
func (u User) IsCompleted(id contentid.ID) bool {
	return Contains(u.Completed, id)
}

// WatchRecord returns the record for videoID, if any.
func (u User) WatchRecord(videoID contentid.ID) (WatchRecord, bool) {
	for _, r := range u.WatchRecords {
		if r.VideoID == videoID {
			return r, true
		}
	}

	return WatchRecord{}, false
}

// MarkCompleted returns a copy of u with id removed from the started set and
// prepended to the completed set if absent.
func (u User) MarkCompleted(id contentid.ID) User {
	u.Started = Remove(u.Started, id)
	u.Completed = InsertIfAbsent(u.Completed, id)

	return u
}

// MarkStarted returns a copy of u with id prepended to the started set if
// absent. Completed items stay completed and are not added to started, so
// an id never appears in both sets.
func (u User) MarkStarted(id contentid.ID) User {
	if Contains(u.Completed, id) {
		return u
	}

	u.Started = InsertIfAbsent(u.Started, id)

	return u
}

// Normalized returns a copy of u where no id is both started and completed;
// completed wins. Duplicates within each set are dropped, first one kept.
func (u User) Normalized() User {
	completed := make([]contentid.ID, 0, len(u.Completed))
	for _, id := range u.Completed {
		if !Contains(completed, id) {
			completed = append(completed, id)
		}
	}

	started := make([]contentid.ID, 0, len(u.Started))
	for _, id := range u.Started {
		if !Contains(completed, id) && !Contains(started, id) {
			started = append(started, id)
		}
	}

	u.Started = started
	u.Completed = completed

	return u
}

// UpsertWatchRecord returns a copy of u where the record for rec.VideoID is
// replaced in place, or prepended when none exists.
func (u User) UpsertWatchRecord(rec WatchRecord) User {
	for i, r := range u.WatchRecords {
		if r.VideoID == rec.VideoID {
			records := slices.Clone(u.WatchRecords)
			records[i] = rec
			u.WatchRecords = records

			return u
		}
	}

	records := make([]WatchRecord, 0, len(u.WatchRecords)+1)
	records = append(records, rec)
	u.WatchRecords = append(records, u.WatchRecords...)

	return u
}

// Contains reports whether id is in ids.
func Contains(ids []contentid.ID, id contentid.ID) bool {
	return slices.Contains(ids, id)
}

// InsertIfAbsent returns ids with id prepended, or ids unchanged if it is
// already present. The input slice is never modified.
func InsertIfAbsent(ids []contentid.ID, id contentid.ID) []contentid.ID {
	if Contains(ids, id) {
		return ids
	}

	out := make([]contentid.ID, 0, len(ids)+1)
	out = append(out, id)

	return append(out, ids...)
}

// Remove returns ids without any occurrence of id. The input slice is never
// modified.
func Remove(ids []contentid.ID, id contentid.ID) []contentid.ID {
	if !Contains(ids, id) {
		return ids
	}

	out := make([]contentid.ID, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}

	return out
}
