package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/tonimelisma/learnsync/internal/contentid"
	"github.com/tonimelisma/learnsync/internal/session"
)

// API paths.
const (
	pathUser          = "/user"
	pathUserProgress  = "/user/progress_summary"
	pathUserVideos    = "/user/videos"
	pathUserExercises = "/user/exercises"
)

// ReportVideoProgress logs watch time for one video and returns the
// service's authoritative result.
func (c *Client) ReportVideoProgress(ctx context.Context, req VideoProgressRequest) (*ProgressReport, error) {
	if req.ExternalID == "" {
		return nil, fmt.Errorf("remote: reporting video %s: missing external id", req.VideoID)
	}

	path := "/user/videos/" + url.PathEscape(req.ExternalID) + "/log"
	query := url.Values{
		"seconds_watched":     {strconv.FormatFloat(req.SecondsWatched, 'f', -1, 64)},
		"last_second_watched": {strconv.Itoa(req.LastSecondWatched)},
	}

	var raw progressReportJSON
	if err := c.postJSON(ctx, path, query, &raw); err != nil {
		return nil, err
	}

	if raw.PointsEarned == nil {
		return nil, malformed(path, "missing points_earned")
	}

	if raw.IsVideoCompleted == nil {
		return nil, malformed(path, "missing is_video_completed")
	}

	report := &ProgressReport{
		PointsEarned:     *raw.PointsEarned,
		IsVideoCompleted: *raw.IsVideoCompleted,
		ExternalID:       raw.YoutubeID,
	}

	if raw.LastSecondWatched != nil {
		report.LastSecondWatched = *raw.LastSecondWatched
	}

	c.logger.Debug("video progress reported",
		slog.String("video_id", req.VideoID.String()),
		slog.Int("points_earned", report.PointsEarned),
		slog.Bool("completed", report.IsVideoCompleted),
	)

	return report, nil
}

// ReportArticleRead marks an article as read.
func (c *Client) ReportArticleRead(ctx context.Context, articleID contentid.ID) (*ArticleReadResult, error) {
	if articleID.IsZero() {
		return nil, fmt.Errorf("remote: reporting article: empty id")
	}

	path := "/user/article/" + url.PathEscape(articleID.String()) + "/log"

	var raw json.RawMessage
	if err := c.postJSON(ctx, path, nil, &raw); err != nil {
		return nil, err
	}

	return &ArticleReadResult{Raw: raw}, nil
}

// UserInfo fetches the signed-in account's profile.
func (c *Client) UserInfo(ctx context.Context) (session.Profile, error) {
	var raw profileJSON
	if err := c.getJSON(ctx, pathUser, nil, &raw); err != nil {
		return session.Profile{}, err
	}

	if raw.Nickname == "" && raw.Username == "" {
		return session.Profile{}, malformed(pathUser, "missing nickname and username")
	}

	return raw.profile(), nil
}

// UserProgress fetches started and completed ids across videos and
// articles. Kind prefixes are stripped; ids with an unknown prefix are
// skipped.
func (c *Client) UserProgress(ctx context.Context) (Progress, error) {
	query := url.Values{"kind": {"Video,Article"}}

	var raw progressJSON
	if err := c.getJSON(ctx, pathUserProgress, query, &raw); err != nil {
		return Progress{}, err
	}

	if raw.Complete == nil || raw.Started == nil {
		return Progress{}, malformed(pathUserProgress, "missing started or complete")
	}

	return Progress{
		Started:   c.stripPrefixes(raw.Started),
		Completed: c.stripPrefixes(raw.Complete),
	}, nil
}

func (c *Client) stripPrefixes(prefixed []string) []contentid.ID {
	out := make([]contentid.ID, 0, len(prefixed))

	for _, p := range prefixed {
		_, id, err := contentid.ParsePrefixed(p)
		if err != nil {
			c.logger.Warn("skipping progress entry",
				slog.String("entry", p),
				slog.String("error", err.Error()),
			)

			continue
		}

		if !session.Contains(out, id) {
			out = append(out, id)
		}
	}

	return out
}

// UserVideos fetches the account's watch records.
func (c *Client) UserVideos(ctx context.Context) ([]session.WatchRecord, error) {
	var raw []userVideoJSON
	if err := c.getJSON(ctx, pathUserVideos, nil, &raw); err != nil {
		return nil, err
	}

	out := make([]session.WatchRecord, 0, len(raw))

	for _, v := range raw {
		rec := v.record()
		if rec.VideoID.IsZero() {
			c.logger.Warn("skipping watch record without video id")
			continue
		}

		out = append(out, rec)
	}

	return out, nil
}

// UserExercises fetches the account's exercise statistics.
func (c *Client) UserExercises(ctx context.Context) ([]session.ExerciseStat, error) {
	var raw []userExerciseJSON
	if err := c.getJSON(ctx, pathUserExercises, nil, &raw); err != nil {
		return nil, err
	}

	out := make([]session.ExerciseStat, 0, len(raw))
	for _, e := range raw {
		out = append(out, e.stat())
	}

	return out, nil
}
