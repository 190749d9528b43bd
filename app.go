package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/tonimelisma/learnsync/internal/config"
	"github.com/tonimelisma/learnsync/internal/mirror"
	"github.com/tonimelisma/learnsync/internal/progress"
	"github.com/tonimelisma/learnsync/internal/remote"
	"github.com/tonimelisma/learnsync/internal/session"
)

// dataDirPermissions restricts the data directory to the owner; it holds the
// OAuth token.
const dataDirPermissions = 0o700

// app is the wired object graph shared by the progress commands.
type app struct {
	cfg        *config.Config
	store      *mirror.Store
	session    *session.Session
	client     *remote.Client
	auth       *tokenAuth
	reconciler *progress.Reconciler
	logger     *slog.Logger
}

// openApp opens the mirror, loads the catalog, and wires the reconciler. The
// caller must Close the app. ctx bounds token refreshes for the app's lifetime.
func openApp(ctx context.Context, cc *CLIContext) (*app, error) {
	cfg := cc.Cfg
	logger := cc.Logger

	if err := os.MkdirAll(cfg.DataDir(), dataDirPermissions); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	store, err := mirror.Open(ctx, cfg.StatePath(), logger)
	if err != nil {
		return nil, err
	}

	sess := session.New(logger)

	if path := cfg.CatalogPath(); path != "" {
		items, err := session.LoadCatalog(path)
		if err != nil {
			store.Close()
			return nil, err
		}

		sess.PutItems(items...)
		logger.Debug("catalog loaded", slog.String("path", path), slog.Int("items", len(items)))
	}

	auth := newTokenAuth(ctx, cfg, logger)
	client := remote.NewClient(cfg.Remote.BaseURL, newHTTPClient(cfg), auth, cfg.Network.UserAgent, logger)

	return &app{
		cfg:        cfg,
		store:      store,
		session:    sess,
		client:     client,
		auth:       auth,
		reconciler: progress.NewReconciler(sess, client, auth, store, logger),
		logger:     logger,
	}, nil
}

// restore loads the cached user for the current account from the mirror.
func (a *app) restore(ctx context.Context) error {
	ok, err := a.reconciler.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restoring cached progress: %w", err)
	}

	a.logger.Debug("restore finished", slog.Bool("restored", ok))

	return nil
}

// Close releases the mirror.
func (a *app) Close() error {
	return a.store.Close()
}

// tokenAuth ties the sign-in state to the token file in the data directory.
// It is both the reconciler's Auth and the remote client's TokenSource.
type tokenAuth struct {
	ctx      context.Context
	settings remote.OAuthSettings
	path     string
	logger   *slog.Logger

	// display shows the device code to the user.
	display func(remote.DeviceAuth)

	mu  sync.Mutex
	src remote.TokenSource
}

func newTokenAuth(ctx context.Context, cfg *config.Config, logger *slog.Logger) *tokenAuth {
	return &tokenAuth{
		ctx: ctx,
		settings: remote.OAuthSettings{
			ClientID:      cfg.Remote.ClientID,
			AuthURL:       cfg.Remote.AuthURL,
			TokenURL:      cfg.Remote.TokenURL,
			DeviceAuthURL: cfg.Remote.DeviceAuthURL,
			Scopes:        cfg.Remote.Scopes,
		},
		path:    cfg.TokenPath(),
		logger:  logger,
		display: printDeviceCode,
	}
}

// printDeviceCode is always shown, even with --quiet.
func printDeviceCode(da remote.DeviceAuth) {
	fmt.Fprintf(os.Stderr, "To sign in, visit: %s\n", da.VerificationURI)
	fmt.Fprintf(os.Stderr, "Enter code: %s\n", da.UserCode)
}

// IsSignedIn reports whether a token file exists.
func (t *tokenAuth) IsSignedIn() bool {
	return remote.IsSignedIn(t.path)
}

// SignIn runs the device-code flow.
func (t *tokenAuth) SignIn(ctx context.Context) error {
	if err := config.ValidateSignIn(&config.RemoteConfig{
		ClientID:      t.settings.ClientID,
		TokenURL:      t.settings.TokenURL,
		DeviceAuthURL: t.settings.DeviceAuthURL,
	}); err != nil {
		return err
	}

	src, err := remote.Login(ctx, t.settings, t.path, t.display, t.logger)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.src = src
	t.mu.Unlock()

	return nil
}

// SignOut removes the token file.
func (t *tokenAuth) SignOut(context.Context) error {
	t.mu.Lock()
	t.src = nil
	t.mu.Unlock()

	return remote.Logout(t.path, t.logger)
}

// Token returns an access token, loading the saved credential on first use.
func (t *tokenAuth) Token() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.src == nil {
		src, err := remote.TokenSourceFromPath(t.ctx, t.settings, t.path, t.logger)
		if err != nil {
			if errors.Is(err, remote.ErrNotLoggedIn) {
				return "", fmt.Errorf("not signed in, run 'learnsync login' first: %w", err)
			}

			return "", err
		}

		t.src = src
	}

	return t.src.Token()
}
