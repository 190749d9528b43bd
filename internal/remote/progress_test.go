package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/learnsync/internal/contentid"
	"github.com/tonimelisma/learnsync/internal/session"
)

// newAPIServer serves body for pattern and fails every other route.
func newAPIServer(t *testing.T, pattern, body string, check func(*http.Request)) *Client {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return newTestClient(t, srv.URL)
}

func TestReportVideoProgress(t *testing.T) {
	c := newAPIServer(t, "POST /user/videos/yt-42/log",
		`{"points_earned":5,"is_video_completed":true,"last_second_watched":590,"youtube_id":"yt-42"}`,
		func(r *http.Request) {
			assert.Equal(t, "12.5", r.URL.Query().Get("seconds_watched"))
			assert.Equal(t, "590", r.URL.Query().Get("last_second_watched"))
		})

	got, err := c.ReportVideoProgress(context.Background(), VideoProgressRequest{
		VideoID:           contentid.New("42"),
		ExternalID:        "yt-42",
		SecondsWatched:    12.5,
		LastSecondWatched: 590,
	})
	require.NoError(t, err)
	assert.Equal(t, &ProgressReport{
		PointsEarned:      5,
		IsVideoCompleted:  true,
		LastSecondWatched: 590,
		ExternalID:        "yt-42",
	}, got)
}

func TestReportVideoProgress_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing points", `{"is_video_completed":false,"last_second_watched":3}`},
		{"missing completion", `{"points_earned":0,"last_second_watched":3}`},
		{"not json", `<html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newAPIServer(t, "POST /user/videos/yt/log", tt.body, nil)

			_, err := c.ReportVideoProgress(context.Background(), VideoProgressRequest{
				VideoID: contentid.New("1"), ExternalID: "yt",
			})
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestReportVideoProgress_MissingExternalID(t *testing.T) {
	c := newTestClient(t, "http://unused")

	_, err := c.ReportVideoProgress(context.Background(), VideoProgressRequest{VideoID: contentid.New("1")})
	require.Error(t, err)
}

func TestReportArticleRead(t *testing.T) {
	c := newAPIServer(t, "POST /user/article/a7/log", `{"action_results":{}}`, nil)

	got, err := c.ReportArticleRead(context.Background(), contentid.New("a7"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"action_results":{}}`, string(got.Raw))
}

func TestUserInfo(t *testing.T) {
	c := newAPIServer(t, "GET /user",
		`{"avatar_url":"https://x/a.png","joined":"2015-01-01","nickname":"alice","username":"alice1","points":120,"badge_counts":{"1":2}}`,
		nil)

	p, err := c.UserInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.Profile{
		AvatarURL:   "https://x/a.png",
		Joined:      "2015-01-01",
		Nickname:    "alice",
		Username:    "alice1",
		Points:      120,
		BadgeCounts: map[string]int{"1": 2},
	}, p)
}

func TestUserInfo_NoIdentity(t *testing.T) {
	c := newAPIServer(t, "GET /user", `{"points":3}`, nil)

	_, err := c.UserInfo(context.Background())
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestUserProgress_StripsPrefixes(t *testing.T) {
	c := newAPIServer(t, "GET /user/progress_summary",
		`{"started":["v1","a2","x9","v1"],"complete":["v3"]}`,
		func(r *http.Request) {
			assert.Equal(t, "Video,Article", r.URL.Query().Get("kind"))
		})

	p, err := c.UserProgress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []contentid.ID{contentid.New("1"), contentid.New("2")}, p.Started)
	assert.Equal(t, []contentid.ID{contentid.New("3")}, p.Completed)
}

func TestUserProgress_Malformed(t *testing.T) {
	c := newAPIServer(t, "GET /user/progress_summary", `{"started":[]}`, nil)

	_, err := c.UserProgress(context.Background())
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestUserVideos(t *testing.T) {
	c := newAPIServer(t, "GET /user/videos",
		`[{"video":{"id":"10"},"duration":300,"last_second_watched":40,"points":75},
		  {"id":11,"duration":60,"last_second_watched":60,"points":750},
		  {"duration":1}]`,
		nil)

	got, err := c.UserVideos(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []session.WatchRecord{
		{VideoID: contentid.New("10"), Duration: 300, LastSecondWatched: 40, Points: 75},
		{VideoID: contentid.New("11"), Duration: 60, LastSecondWatched: 60, Points: 750},
	}, got)
}

func TestUserExercises(t *testing.T) {
	c := newAPIServer(t, "GET /user/exercises",
		`[{"streak":3,"total_correct":8,"total_done":10,"exercise_model":{"content_id":"e1"}}]`,
		nil)

	got, err := c.UserExercises(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []session.ExerciseStat{
		{ContentID: contentid.New("e1"), Streak: 3, TotalCorrect: 8, TotalDone: 10},
	}, got)
}
