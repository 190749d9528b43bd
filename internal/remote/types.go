package remote

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tonimelisma/learnsync/internal/contentid"
	"github.com/tonimelisma/learnsync/internal/session"
)

// VideoProgressRequest is one per-video progress report.
type VideoProgressRequest struct {
	VideoID           contentid.ID
	ExternalID        string
	SecondsWatched    float64
	LastSecondWatched int
}

// ProgressReport is the service's authoritative answer to a video report.
type ProgressReport struct {
	PointsEarned      int
	IsVideoCompleted  bool
	LastSecondWatched int
	ExternalID        string
}

// ArticleReadResult is the service's answer to an article-read report. The
// payload is opaque to the client.
type ArticleReadResult struct {
	Raw json.RawMessage
}

// Progress is the bulk started/completed summary with wire prefixes removed.
type Progress struct {
	Started   []contentid.ID
	Completed []contentid.ID
}

// wireID decodes identifiers the service sends as either strings or numbers.
type wireID string

func (w *wireID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*w = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		*w = wireID(s)

		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("remote: identifier is neither string nor number: %s", data)
	}

	*w = wireID(n.String())

	return nil
}

func (w wireID) id() contentid.ID {
	return contentid.New(string(w))
}

type progressReportJSON struct {
	PointsEarned      *int   `json:"points_earned"`
	IsVideoCompleted  *bool  `json:"is_video_completed"`
	LastSecondWatched *int   `json:"last_second_watched"`
	YoutubeID         string `json:"youtube_id"`
}

type profileJSON struct {
	AvatarURL   string         `json:"avatar_url"`
	Joined      string         `json:"joined"`
	Nickname    string         `json:"nickname"`
	Username    string         `json:"username"`
	Points      int            `json:"points"`
	BadgeCounts map[string]int `json:"badge_counts"`
}

func (p profileJSON) profile() session.Profile {
	return session.Profile{
		AvatarURL:   p.AvatarURL,
		Joined:      p.Joined,
		Nickname:    p.Nickname,
		Username:    p.Username,
		Points:      p.Points,
		BadgeCounts: p.BadgeCounts,
	}
}

type progressJSON struct {
	Started  []string `json:"started"`
	Complete []string `json:"complete"`
}

// userVideoJSON accepts both the nested {video:{id}} layout and a flat id.
type userVideoJSON struct {
	ID    wireID `json:"id"`
	Video struct {
		ID wireID `json:"id"`
	} `json:"video"`
	Duration          int `json:"duration"`
	LastSecondWatched int `json:"last_second_watched"`
	Points            int `json:"points"`
}

func (v userVideoJSON) record() session.WatchRecord {
	id := v.Video.ID
	if id == "" {
		id = v.ID
	}

	return session.WatchRecord{
		VideoID:           id.id(),
		Duration:          v.Duration,
		LastSecondWatched: v.LastSecondWatched,
		Points:            v.Points,
	}
}

type userExerciseJSON struct {
	Streak        int `json:"streak"`
	TotalCorrect  int `json:"total_correct"`
	TotalDone     int `json:"total_done"`
	ExerciseModel struct {
		ContentID wireID `json:"content_id"`
	} `json:"exercise_model"`
}

func (e userExerciseJSON) stat() session.ExerciseStat {
	return session.ExerciseStat{
		ContentID:    e.ExerciseModel.ContentID.id(),
		Streak:       e.Streak,
		TotalCorrect: e.TotalCorrect,
		TotalDone:    e.TotalDone,
	}
}
