package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// shutdownContext is cancelled by the first SIGINT or SIGTERM. serve then
// drains in-flight watch reports; a second signal exits immediately.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, shutdownSignals...)

	go func() {
		defer signal.Stop(sigs)

		for received := 0; ; received++ {
			select {
			case <-parent.Done():
				cancel()
				return
			case sig := <-sigs:
				if received > 0 {
					logger.Warn("second signal, exiting without draining", slog.String("signal", sig.String()))
					os.Exit(1)
				}

				logger.Info("shutting down", slog.String("signal", sig.String()))
				cancel()
			}
		}
	}()

	return ctx
}

// onHangup runs fn for each SIGHUP until ctx is done. fn calls never overlap;
// hangups that arrive during a call collapse into one.
func onHangup(ctx context.Context, fn func()) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			fn()
		}
	}
}
