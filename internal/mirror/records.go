package mirror

import (
	"github.com/tonimelisma/learnsync/internal/contentid"
	"github.com/tonimelisma/learnsync/internal/session"
)

// Stored JSON shapes. The layouts are fixed so that data written by earlier
// versions of the client keeps loading.

type videoRef struct {
	ID contentid.ID `json:"id"`
}

type watchRecordJSON struct {
	Video             videoRef `json:"video"`
	Duration          int      `json:"duration"`
	LastSecondWatched int      `json:"last_second_watched"`
	Points            int      `json:"points"`
}

type exerciseModelRef struct {
	ContentID contentid.ID `json:"content_id"`
}

type exerciseStatJSON struct {
	Streak        int              `json:"streak"`
	TotalCorrect  int              `json:"total_correct"`
	TotalDone     int              `json:"total_done"`
	ExerciseModel exerciseModelRef `json:"exercise_model"`
}

func encodeWatchRecords(records []session.WatchRecord) []watchRecordJSON {
	out := make([]watchRecordJSON, 0, len(records))
	for _, r := range records {
		out = append(out, watchRecordJSON{
			Video:             videoRef{ID: r.VideoID},
			Duration:          r.Duration,
			LastSecondWatched: r.LastSecondWatched,
			Points:            r.Points,
		})
	}

	return out
}

func decodeWatchRecords(in []watchRecordJSON) []session.WatchRecord {
	out := make([]session.WatchRecord, 0, len(in))
	for _, r := range in {
		out = append(out, session.WatchRecord{
			VideoID:           r.Video.ID,
			Duration:          r.Duration,
			LastSecondWatched: r.LastSecondWatched,
			Points:            r.Points,
		})
	}

	return out
}

func encodeExerciseStats(stats []session.ExerciseStat) []exerciseStatJSON {
	out := make([]exerciseStatJSON, 0, len(stats))
	for _, s := range stats {
		out = append(out, exerciseStatJSON{
			Streak:        s.Streak,
			TotalCorrect:  s.TotalCorrect,
			TotalDone:     s.TotalDone,
			ExerciseModel: exerciseModelRef{ContentID: s.ContentID},
		})
	}

	return out
}

func decodeExerciseStats(in []exerciseStatJSON) []session.ExerciseStat {
	out := make([]session.ExerciseStat, 0, len(in))
	for _, s := range in {
		out = append(out, session.ExerciseStat{
			ContentID:    s.ExerciseModel.ContentID,
			Streak:       s.Streak,
			TotalCorrect: s.TotalCorrect,
			TotalDone:    s.TotalDone,
		})
	}

	return out
}
