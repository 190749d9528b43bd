package session

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/learnsync/internal/contentid"
)

// testLogger returns a debug-level logger that writes to t.Log.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

func id(s string) contentid.ID {
	return contentid.New(s)
}

func video(s string, duration int) Item {
	return Item{ID: id(s), Kind: contentid.KindVideo, ExternalID: "yt-" + s, Duration: duration}
}

func TestInsertIfAbsent_Idempotent(t *testing.T) {
	var ids []contentid.ID

	ids = InsertIfAbsent(ids, id("a"))
	ids = InsertIfAbsent(ids, id("b"))
	ids = InsertIfAbsent(ids, id("a"))

	assert.Equal(t, []contentid.ID{id("b"), id("a")}, ids)
}

func TestInsertIfAbsent_DoesNotMutateInput(t *testing.T) {
	in := make([]contentid.ID, 1, 8)
	in[0] = id("x")

	out := InsertIfAbsent(in, id("y"))

	assert.Equal(t, []contentid.ID{id("x")}, in)
	assert.Equal(t, []contentid.ID{id("y"), id("x")}, out)
}

func TestRemove(t *testing.T) {
	in := []contentid.ID{id("a"), id("b"), id("a")}

	assert.Equal(t, []contentid.ID{id("b")}, Remove(in, id("a")))
	assert.Equal(t, []contentid.ID{id("a"), id("b"), id("a")}, in)
	assert.Equal(t, in, Remove(in, id("zz")))
}

func TestUser_MarkCompleted_MovesFromStarted(t *testing.T) {
	u := User{Started: []contentid.ID{id("1"), id("2")}}

	u = u.MarkCompleted(id("1"))
	u = u.MarkCompleted(id("1"))

	assert.Equal(t, []contentid.ID{id("2")}, u.Started)
	assert.Equal(t, []contentid.ID{id("1")}, u.Completed)
}

func TestUser_MarkStarted_SkipsCompleted(t *testing.T) {
	u := User{Completed: []contentid.ID{id("1")}}

	u = u.MarkStarted(id("1"))
	u = u.MarkStarted(id("2"))
	u = u.MarkStarted(id("2"))

	assert.Equal(t, []contentid.ID{id("2")}, u.Started)
	assert.False(t, u.IsStarted(id("1")))
}

func TestUser_Normalized(t *testing.T) {
	u := User{
		Started:   []contentid.ID{id("5"), id("2"), id("5"), id("3")},
		Completed: []contentid.ID{id("3"), id("5"), id("3")},
	}
	origStarted := u.Started

	n := u.Normalized()

	assert.Equal(t, []contentid.ID{id("2")}, n.Started)
	assert.Equal(t, []contentid.ID{id("3"), id("5")}, n.Completed)
	assert.Len(t, origStarted, 4, "input must not change")
	assert.Equal(t, id("5"), u.Started[0])
}

func TestUser_UpsertWatchRecord(t *testing.T) {
	u := User{WatchRecords: []WatchRecord{{VideoID: id("a"), LastSecondWatched: 5}}}
	orig := u.WatchRecords

	u = u.UpsertWatchRecord(WatchRecord{VideoID: id("a"), LastSecondWatched: 50, Points: 10})
	require.Len(t, u.WatchRecords, 1)
	assert.Equal(t, 50, u.WatchRecords[0].LastSecondWatched)
	assert.Equal(t, 5, orig[0].LastSecondWatched, "previous snapshot must not change")

	u = u.UpsertWatchRecord(WatchRecord{VideoID: id("b")})
	require.Len(t, u.WatchRecords, 2)
	assert.Equal(t, id("b"), u.WatchRecords[0].VideoID)
}

func TestProfile_Namespace(t *testing.T) {
	assert.Equal(t, "nick", Profile{Nickname: "nick", Username: "user"}.Namespace())
	assert.Equal(t, "user", Profile{Username: "user"}.Namespace())
	assert.Empty(t, Profile{}.Namespace())
}

func TestClampPoints(t *testing.T) {
	assert.Equal(t, 750, ClampPoints(800))
	assert.Equal(t, 0, ClampPoints(-3))
	assert.Equal(t, 12, ClampPoints(12))
}

func TestTransact_ErrorLeavesSnapshotUntouched(t *testing.T) {
	s := New(testLogger(t))
	s.PutItems(video("v1", 100))

	boom := errors.New("boom")
	_, err := s.Transact(func(cur Snapshot) (Snapshot, error) {
		cur = cur.WithUser(User{Started: []contentid.ID{id("v1")}})
		return cur, boom
	})

	require.ErrorIs(t, err, boom)
	assert.Empty(t, s.User().Started)
}

func TestEditItem_UnknownItem(t *testing.T) {
	s := New(testLogger(t))

	_, err := s.EditItem(id("missing"), func(it Item) Item { return it })
	assert.ErrorIs(t, err, ErrUnknownItem)
}

func TestEditItem_KeepsID(t *testing.T) {
	s := New(testLogger(t))
	s.PutItems(video("v1", 100))

	it, err := s.EditItem(id("v1"), func(it Item) Item {
		it.ID = id("other")
		it.Points = 5

		return it
	})
	require.NoError(t, err)
	assert.Equal(t, id("v1"), it.ID)
	assert.Equal(t, 5, it.Points)
}

func TestSnapshot_ReadersSeeStableView(t *testing.T) {
	s := New(testLogger(t))
	s.PutItems(video("v1", 100))

	before := s.Snapshot()

	_, err := s.EditItem(id("v1"), func(it Item) Item {
		it.Points = 99
		return it
	})
	require.NoError(t, err)

	old, _ := before.Item(id("v1"))
	cur, _ := s.Item(id("v1"))

	assert.Equal(t, 0, old.Points)
	assert.Equal(t, 99, cur.Points)
}

func TestSubscriptions(t *testing.T) {
	s := New(testLogger(t))
	s.PutItems(video("v1", 100), video("v2", 100))

	var (
		users []User
		items []Item
	)

	cancelUser := s.SubscribeUser(func(u User) { users = append(users, u) })
	cancelItem := s.SubscribeItem(id("v1"), func(it Item) { items = append(items, it) })

	s.EditUser(func(u User) User { return u.MarkStarted(id("v1")) })
	_, err := s.EditItem(id("v1"), func(it Item) Item { it.Started = true; return it })
	require.NoError(t, err)
	_, err = s.EditItem(id("v2"), func(it Item) Item { it.Started = true; return it })
	require.NoError(t, err)

	// A no-op edit does not notify.
	s.EditUser(func(u User) User { return u })

	require.Len(t, users, 1)
	assert.Equal(t, []contentid.ID{id("v1")}, users[0].Started)
	require.Len(t, items, 1)
	assert.True(t, items[0].Started)

	cancelUser()
	cancelItem()

	s.EditUser(func(u User) User { return u.MarkStarted(id("v2")) })
	assert.Len(t, users, 1)
}

func TestPutItems_Hydrates(t *testing.T) {
	s := New(testLogger(t))
	s.EditUser(func(User) User {
		return User{
			Completed:    []contentid.ID{id("v1")},
			Started:      []contentid.ID{id("v2")},
			WatchRecords: []WatchRecord{{VideoID: id("v2"), LastSecondWatched: 42, Points: 300}},
		}
	})

	s.PutItems(video("v1", 100), video("v2", 100), video("v3", 100))

	v1, _ := s.Item(id("v1"))
	v2, _ := s.Item(id("v2"))
	v3, _ := s.Item(id("v3"))

	assert.True(t, v1.Completed)
	assert.False(t, v1.Started)
	assert.True(t, v2.Started)
	assert.Equal(t, 42, v2.LastSecondWatched)
	assert.Equal(t, 300, v2.Points)
	assert.False(t, v3.Started || v3.Completed)
}

func TestReset_ClearsUserAndItemProgress(t *testing.T) {
	s := New(testLogger(t))
	s.PutItems(video("v1", 100))
	s.EditUser(func(u User) User {
		u.Profile = &Profile{Nickname: "n"}
		return u.MarkCompleted(id("v1"))
	})
	_, err := s.EditItem(id("v1"), func(it Item) Item { it.Completed = true; it.Points = 700; return it })
	require.NoError(t, err)

	s.Reset()

	assert.False(t, s.User().HasProfile())
	assert.Empty(t, s.User().Completed)

	it, ok := s.Item(id("v1"))
	require.True(t, ok)
	assert.False(t, it.Completed)
	assert.Zero(t, it.Points)
}

func TestTransact_ConcurrentWritersSerialised(t *testing.T) {
	s := New(testLogger(t))
	s.PutItems(video("v1", 100))

	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, _ = s.EditItem(id("v1"), func(it Item) Item {
				it.Points++
				return it
			})
		}()
	}

	wg.Wait()

	it, _ := s.Item(id("v1"))
	assert.Equal(t, 50, it.Points)
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id":"x1","kind":"video","youtube_id":"yt1","title":"Intro","duration":600},
		{"id":"a9","kind":"article","title":"Reading"}
	]`), 0o600))

	items, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "yt1", items[0].ExternalID)
	assert.True(t, items[0].IsVideo())
	assert.Equal(t, contentid.KindArticle, items[1].Kind)
}

func TestLoadCatalog_VideoWithoutYoutubeID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"x1","kind":"video"}]`), 0o600))

	_, err := LoadCatalog(path)
	assert.Error(t, err)
}
