package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/learnsync/internal/config"
	"github.com/tonimelisma/learnsync/internal/contentid"
	"github.com/tonimelisma/learnsync/internal/tokenfile"
)

// fakeRemote serves just enough of the progress API for the CLI commands.
type fakeRemote struct {
	videoLogs   atomic.Int32
	articleLogs atomic.Int32
}

func (f *fakeRemote) handler() http.Handler {
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"nickname": "alice", "username": "alice01", "points": 500})
	})
	mux.HandleFunc("GET /user/progress_summary", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"started": []string{"vv1"}, "complete": []string{}})
	})
	mux.HandleFunc("GET /user/videos", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, []any{map[string]any{
			"video": map[string]any{"id": "v1"}, "duration": 600,
			"last_second_watched": 60, "points": 50,
		}})
	})
	mux.HandleFunc("GET /user/exercises", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, []any{})
	})
	mux.HandleFunc("POST /user/videos/yt-1/log", func(w http.ResponseWriter, _ *http.Request) {
		f.videoLogs.Add(1)
		writeJSON(w, map[string]any{
			"points_earned": 25, "is_video_completed": false,
			"last_second_watched": 120, "youtube_id": "yt-1",
		})
	})
	mux.HandleFunc("POST /user/article/a1/log", func(w http.ResponseWriter, _ *http.Request) {
		f.articleLogs.Add(1)
		writeJSON(w, map[string]any{})
	})

	return mux
}

// signedInEnv writes a config pointing at a fake remote plus a saved token,
// and returns the config path.
func signedInEnv(t *testing.T) (string, *fakeRemote) {
	t.Helper()

	home := isolateEnv(t)

	fake := &fakeRemote{}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	catalog := filepath.Join(home, "catalog.json")
	require.NoError(t, os.WriteFile(catalog, []byte(testCatalog), 0o600))

	dataDir := filepath.Join(home, "data")
	cfgPath := filepath.Join(home, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(
		"[remote]\nbase_url = %q\n\n[storage]\ndata_dir = %q\ncatalog_file = %q\n",
		srv.URL, dataDir, catalog)), 0o600))

	require.NoError(t, tokenfile.Save(filepath.Join(dataDir, "token.json"), tokenfile.File{
		Token: &oauth2.Token{AccessToken: "tok", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)},
	}))

	return cfgPath, fake
}

// reopen loads the state a previous command left in the mirror.
func reopen(t *testing.T, cfgPath string) *app {
	t.Helper()

	cfg, err := config.Load(cfgPath, quietLogger())
	require.NoError(t, err)

	a, err := openApp(context.Background(), &CLIContext{Cfg: cfg, CfgPath: cfgPath, Logger: quietLogger()})
	require.NoError(t, err)

	t.Cleanup(func() { assert.NoError(t, a.Close()) })
	require.NoError(t, a.restore(context.Background()))

	return a
}

func TestRefresh_StoresProfileAndProgress(t *testing.T) {
	cfgPath, _ := signedInEnv(t)

	require.NoError(t, execute(t, "--config", cfgPath, "refresh"))

	u := reopen(t, cfgPath).session.User()
	require.True(t, u.HasProfile())
	assert.Equal(t, "alice", u.Profile.Nickname)
	assert.Equal(t, []contentid.ID{contentid.New("v1")}, u.Started)
	require.Len(t, u.WatchRecords, 1)
	assert.Equal(t, 60, u.WatchRecords[0].LastSecondWatched)

	acct, err := tokenfile.Load(filepath.Join(filepath.Dir(cfgPath), "data", "token.json"))
	require.NoError(t, err)
	assert.Equal(t, "alice", acct.Account.Nickname)
}

func TestReportVideo_RequiresProfile(t *testing.T) {
	cfgPath, fake := signedInEnv(t)

	err := execute(t, "--config", cfgPath, "report-video", "v1", "--seconds", "30", "--position", "120")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "learnsync refresh")
	assert.Zero(t, fake.videoLogs.Load())
}

func TestReportVideo_MergesReport(t *testing.T) {
	cfgPath, fake := signedInEnv(t)

	require.NoError(t, execute(t, "--config", cfgPath, "refresh"))
	require.NoError(t, execute(t, "--config", cfgPath, "report-video", "v1", "--seconds", "30", "--position", "120"))
	assert.EqualValues(t, 1, fake.videoLogs.Load())

	a := reopen(t, cfgPath)
	assert.Equal(t, 525, a.session.User().Profile.Points)

	item, ok := a.session.Snapshot().Hydrated().Item(contentid.New("v1"))
	require.True(t, ok)
	assert.Equal(t, 75, item.Points)
	assert.Equal(t, 120, item.LastSecondWatched)
}

func TestReportVideo_UnknownItem(t *testing.T) {
	cfgPath, _ := signedInEnv(t)

	require.NoError(t, execute(t, "--config", cfgPath, "refresh"))

	err := execute(t, "--config", cfgPath, "report-video", "nope", "--seconds", "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog_file")
}

func TestReportArticle_MarksCompleted(t *testing.T) {
	cfgPath, fake := signedInEnv(t)

	require.NoError(t, execute(t, "--config", cfgPath, "refresh"))
	require.NoError(t, execute(t, "--config", cfgPath, "report-article", "a1"))
	assert.EqualValues(t, 1, fake.articleLogs.Load())

	u := reopen(t, cfgPath).session.User()
	assert.Contains(t, u.Completed, contentid.New("a1"))
}

func TestExport_WritesWorkbook(t *testing.T) {
	cfgPath, _ := signedInEnv(t)
	out := filepath.Join(filepath.Dir(cfgPath), "out.xlsx")

	err := execute(t, "--config", cfgPath, "export", "--out", out)
	require.Error(t, err, "export needs a cached profile")

	require.NoError(t, execute(t, "--config", cfgPath, "refresh"))
	require.NoError(t, execute(t, "--config", cfgPath, "export", "--out", out))

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(out), ".export-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestLogout_PurgeDropsCachedProgress(t *testing.T) {
	cfgPath, _ := signedInEnv(t)

	require.NoError(t, execute(t, "--config", cfgPath, "refresh"))
	require.NoError(t, execute(t, "--config", cfgPath, "logout", "--purge"))

	a := reopen(t, cfgPath)
	assert.False(t, a.reconciler.IsSignedIn())
	assert.False(t, a.session.User().HasProfile())
}
