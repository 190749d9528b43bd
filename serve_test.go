package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/learnsync/internal/config"
	"github.com/tonimelisma/learnsync/internal/contentid"
	"github.com/tonimelisma/learnsync/internal/progress"
	"github.com/tonimelisma/learnsync/internal/scheduler"
	"github.com/tonimelisma/learnsync/internal/session"
	"github.com/tonimelisma/learnsync/internal/watch"
)

type idleReporter struct{}

func (idleReporter) IsSignedIn() bool { return false }

func (idleReporter) ReportVideoProgress(context.Context, contentid.ID, float64, int) (*progress.VideoOutcome, error) {
	return &progress.VideoOutcome{}, nil
}

func TestWatchConfig_ReschedulesOnEdit(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[refresh]\ninterval = \"1h\"\n"), 0o600))

	logger := quietLogger()

	cfg, err := config.Load(cfgPath, logger)
	require.NoError(t, err)

	cc := &CLIContext{Cfg: cfg, CfgPath: cfgPath, Logger: logger}
	tracker := watch.NewTracker(context.Background(), idleReporter{}, cfg.MinReportInterval(), logger)
	sched := scheduler.New(func(context.Context) error { return nil }, cfg.RefreshInterval(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		watchConfig(ctx, config.NewHolder(cfg, cfgPath), cc, tracker, sched, logger)
		close(done)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(cfgPath, []byte("[refresh]\ninterval = \"2h\"\n"), 0o600))

	assert.Eventually(t, func() bool { return sched.Interval() == 2*time.Hour },
		5*time.Second, 20*time.Millisecond)
}

func TestWatchConfig_MissingDirReturns(t *testing.T) {
	logger := quietLogger()
	cfg := config.DefaultConfig()
	path := filepath.Join(t.TempDir(), "gone", "config.toml")

	cc := &CLIContext{Cfg: cfg, CfgPath: path, Logger: logger}
	tracker := watch.NewTracker(context.Background(), idleReporter{}, 0, logger)
	sched := scheduler.New(func(context.Context) error { return nil }, 0, logger)

	// Returns immediately instead of blocking on the context.
	watchConfig(context.Background(), config.NewHolder(cfg, path), cc, tracker, sched, logger)
}

func TestLogPointChanges(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, nil))
	sess := session.New(quietLogger())

	cancel := logPointChanges(sess, logger)

	sess.EditUser(func(u session.User) session.User {
		u.Profile = &session.Profile{Nickname: "alice", Points: 100}
		return u
	})
	sess.EditUser(func(u session.User) session.User {
		u.Started = []contentid.ID{contentid.New("v1")}
		return u
	})

	assert.Contains(t, buf.String(), "points=100 delta=100")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("points changed")))

	cancel()
	sess.EditUser(func(u session.User) session.User {
		p := u.Profile.WithPoints(250)
		u.Profile = &p

		return u
	})

	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("points changed")))
}
