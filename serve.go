package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/learnsync/internal/config"
	"github.com/tonimelisma/learnsync/internal/player"
	"github.com/tonimelisma/learnsync/internal/progress"
	"github.com/tonimelisma/learnsync/internal/scheduler"
	"github.com/tonimelisma/learnsync/internal/session"
	"github.com/tonimelisma/learnsync/internal/watch"
)

// Serve timing.
const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the player endpoint and periodic refresh",
		Long: `Run the player endpoint and periodic refresh.

Players connect to ws://<listen_addr>/sessions/<item-id> and stream playback
events; watch time is reported as it accrues. Account data is refreshed every
refresh.interval, and on SIGHUP. Edits to the config file apply without a
restart, except serve.listen_addr.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().StringSlice("origin", nil, "allowed websocket origin patterns (default same-origin only)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger
	cfg := cc.Cfg

	origins, err := cmd.Flags().GetStringSlice("origin")
	if err != nil {
		return err
	}

	lock, err := acquireServeLock(cfg.PIDPath())
	if err != nil {
		return err
	}
	defer lock.Release()

	ctx := shutdownContext(cmd.Context(), logger)

	a, err := openApp(ctx, cc)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.restore(ctx); err != nil {
		return err
	}

	if a.reconciler.IsSignedIn() {
		refreshLogged(ctx, a.reconciler, cfg.Refresh.ForceOnStart, logger)
	}

	// Reports outlive the shutdown signal so in-flight watch time is merged.
	tracker := watch.NewTracker(context.WithoutCancel(ctx), a.reconciler, cfg.MinReportInterval(), logger)

	// Scheduled runs refetch progress; cached sets would otherwise go stale.
	sched := scheduler.New(func(ctx context.Context) error {
		_, err := a.reconciler.RefreshLoggedInInfo(ctx, true)
		return err
	}, cfg.RefreshInterval(), logger)

	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	defer logPointChanges(a.session, logger)()

	feed := player.NewServer(tracker, a.session, logger)
	feed.OriginPatterns = origins

	srv := &http.Server{
		Addr:              cfg.Serve.ListenAddr,
		Handler:           feed.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	holder := config.NewHolder(cfg, cc.CfgPath)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("serve listening", slog.String("addr", srv.Addr))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("player endpoint: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutCtx)
	})

	g.Go(func() error {
		watchConfig(gctx, holder, cc, tracker, sched, logger)
		return nil
	})

	g.Go(func() error {
		onHangup(gctx, func() {
			logger.Info("received SIGHUP, refreshing")
			refreshLogged(gctx, a.reconciler, true, logger)
		})

		return nil
	})

	err = g.Wait()

	tracker.Wait()
	logger.Info("serve stopped")

	return err
}

// watchConfig applies config file edits while serve runs. A missing config
// directory disables hot reload.
func watchConfig(
	ctx context.Context, holder *config.Holder, cc *CLIContext,
	tracker *watch.Tracker, sched *scheduler.Scheduler, logger *slog.Logger,
) {
	onChange := func(prev, next *config.Config) {
		tracker.SetMinInterval(next.MinReportInterval())

		if next.RefreshInterval() != prev.RefreshInterval() {
			if err := sched.Reschedule(next.RefreshInterval()); err != nil {
				logger.Warn("rescheduling refresh failed", slog.String("error", err.Error()))
			}
		}

		if next.Serve.ListenAddr != prev.Serve.ListenAddr {
			logger.Warn("serve.listen_addr changed, restart serve to apply",
				slog.String("listen_addr", next.Serve.ListenAddr))
		}
	}

	if err := config.Watch(ctx, holder, cc.reloadConfig, onChange, logger); err != nil {
		logger.Info("config hot reload disabled", slog.String("error", err.Error()))
	}
}

// refreshLogged refreshes and logs the outcome. Serve keeps running on failure.
func refreshLogged(ctx context.Context, r *progress.Reconciler, force bool, logger *slog.Logger) {
	out, err := r.RefreshLoggedInInfo(ctx, force)
	if err != nil {
		logger.Warn("refresh failed", slog.Bool("force", force), slog.String("error", err.Error()))
		return
	}

	if out.SignedIn {
		logger.Info("refreshed",
			slog.String("nickname", out.Profile.Namespace()),
			slog.Int("points", out.Profile.Points),
			slog.Bool("used_cache", out.UsedCache),
		)
	}
}

// logPointChanges logs every committed change to the point total until the
// returned func is called. Callbacks are serialised by the session.
func logPointChanges(sess *session.Session, logger *slog.Logger) (cancel func()) {
	last := sess.User().Points()

	return sess.SubscribeUser(func(u session.User) {
		if p := u.Points(); p != last {
			logger.Info("points changed", slog.Int("points", p), slog.Int("delta", p-last))
			last = p
		}
	})
}
