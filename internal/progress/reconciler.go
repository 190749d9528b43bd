// Package progress is the Progress Reconciler. It performs authoritative
// round trips with the remote progress service and merges the results into
// the session's entity graph and the local mirror. Each merge is
// all-or-nothing: the mirror is written first and the in-memory snapshot is
// committed only if that write succeeds.
package progress

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tonimelisma/learnsync/internal/contentid"
	"github.com/tonimelisma/learnsync/internal/mirror"
	"github.com/tonimelisma/learnsync/internal/remote"
	"github.com/tonimelisma/learnsync/internal/session"
)

// Remote is the progress service.
type Remote interface {
	ReportVideoProgress(ctx context.Context, req remote.VideoProgressRequest) (*remote.ProgressReport, error)
	ReportArticleRead(ctx context.Context, articleID contentid.ID) (*remote.ArticleReadResult, error)
	UserInfo(ctx context.Context) (session.Profile, error)
	UserProgress(ctx context.Context) (remote.Progress, error)
	UserVideos(ctx context.Context) ([]session.WatchRecord, error)
	UserExercises(ctx context.Context) ([]session.ExerciseStat, error)
}

// Auth reports and changes the sign-in state.
type Auth interface {
	IsSignedIn() bool
	SignIn(ctx context.Context) error
	SignOut(ctx context.Context) error
}

// Mirror is the durable copy of the user aggregates.
type Mirror interface {
	SaveAll(ctx context.Context, owner session.Profile, a mirror.Aggregates) error
	SaveProfile(ctx context.Context, p session.Profile) error
	LoadCurrentProfile(ctx context.Context) (session.Profile, bool, error)
	LoadAll(ctx context.Context, owner session.Profile) (mirror.Cached, error)
	ClearAll(ctx context.Context) error
}

// Reconciler merges remote progress into the session and mirror.
type Reconciler struct {
	session *session.Session
	remote  Remote
	auth    Auth
	mirror  Mirror
	logger  *slog.Logger

	refreshGroup singleflight.Group
	nowFunc      func() time.Time
}

// NewReconciler creates a Reconciler.
func NewReconciler(sess *session.Session, r Remote, auth Auth, m Mirror, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		session: sess,
		remote:  r,
		auth:    auth,
		mirror:  m,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Session returns the session the reconciler writes to.
func (r *Reconciler) Session() *session.Session {
	return r.session
}

// IsSignedIn reports whether an authenticated session exists.
func (r *Reconciler) IsSignedIn() bool {
	return r.auth.IsSignedIn()
}

// SignIn authenticates and then loads the account's profile and progress.
func (r *Reconciler) SignIn(ctx context.Context) (*RefreshOutcome, error) {
	if err := r.auth.SignIn(ctx); err != nil {
		return nil, err
	}

	return r.RefreshLoggedInInfo(ctx, false)
}

// SignOut drops credentials, forgets the current profile and resets the
// in-memory user. Per-account cached aggregates stay in the mirror.
func (r *Reconciler) SignOut(ctx context.Context) error {
	if err := r.auth.SignOut(ctx); err != nil {
		return err
	}

	if err := r.mirror.ClearAll(ctx); err != nil {
		return err
	}

	r.session.Reset()
	r.logger.Info("signed out, session reset")

	return nil
}
