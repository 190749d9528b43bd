package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/learnsync/internal/remote"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in using the device code flow",
		Args:  cobra.NoArgs,
		RunE:  runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the current account",
		Long: `Sign out and forget the current account.

Cached progress for the account stays in the local mirror so the next sign-in
starts warm. Use --purge to delete it as well.`,
		Args: cobra.NoArgs,
		RunE: runLogout,
	}

	cmd.Flags().Bool("purge", false, "also delete the account's cached progress")

	return cmd
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the signed-in account",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	a, err := openApp(ctx, cc)
	if err != nil {
		return err
	}
	defer a.Close()

	cc.Logger.Info("login started", slog.String("token_path", cc.Cfg.TokenPath()))

	out, err := a.reconciler.SignIn(ctx)
	if err != nil {
		return fmt.Errorf("signing in: %w", err)
	}

	if err := remote.SaveAccount(cc.Cfg.TokenPath(), out.Profile); err != nil {
		cc.Logger.Warn("could not record account next to token", slog.String("error", err.Error()))
	}

	cc.Logger.Info("login successful", slog.String("nickname", out.Profile.Namespace()))
	cc.Statusf("Signed in as %s (%d points).\n", out.Profile.Namespace(), out.Profile.Points)

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	purge, err := cmd.Flags().GetBool("purge")
	if err != nil {
		return err
	}

	a, err := openApp(ctx, cc)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.reconciler.IsSignedIn() {
		cc.Statusf("Not signed in.\n")
		return nil
	}

	if purge {
		owner, found, err := a.store.LoadCurrentProfile(ctx)
		if err != nil {
			return err
		}

		if found {
			if err := a.store.Purge(ctx, owner); err != nil {
				return fmt.Errorf("purging cached progress: %w", err)
			}

			cc.Logger.Info("purged cached progress", slog.String("nickname", owner.Namespace()))
		}
	}

	if err := a.reconciler.SignOut(ctx); err != nil {
		return fmt.Errorf("signing out: %w", err)
	}

	cc.Statusf("Signed out.\n")

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	Nickname    string         `json:"nickname"`
	Username    string         `json:"username"`
	Points      int            `json:"points"`
	Joined      string         `json:"joined,omitempty"`
	SignedInAt  time.Time      `json:"signed_in_at,omitzero"`
	BadgeCounts map[string]int `json:"badge_counts,omitempty"`
	Cached      bool           `json:"cached"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	acct, err := remote.LoadAccount(cc.Cfg.TokenPath())
	if err != nil {
		if errors.Is(err, remote.ErrNotLoggedIn) {
			return fmt.Errorf("not signed in, run 'learnsync login' first")
		}

		return err
	}

	a, err := openApp(ctx, cc)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.restore(ctx); err != nil {
		return err
	}

	out := whoamiOutput{
		Nickname:   acct.Nickname,
		Username:   acct.Username,
		SignedInAt: acct.SignedInAt,
	}

	if u := a.session.User(); u.HasProfile() {
		out.Nickname = u.Profile.Nickname
		out.Username = u.Profile.Username
		out.Points = u.Profile.Points
		out.Joined = u.Profile.Joined
		out.BadgeCounts = u.Profile.BadgeCounts
		out.Cached = true
	}

	if cc.Flags.JSON {
		return printJSON(out)
	}

	printWhoamiText(out)

	return nil
}

func printWhoamiText(out whoamiOutput) {
	name := out.Nickname
	if name == "" {
		name = out.Username
	}

	fmt.Printf("User:      %s\n", name)

	if out.Username != "" && out.Username != name {
		fmt.Printf("Username:  %s\n", out.Username)
	}

	if !out.SignedInAt.IsZero() {
		fmt.Printf("Signed in: %s\n", formatTime(out.SignedInAt, time.Now()))
	}

	if !out.Cached {
		fmt.Println("Profile:   not cached, run 'learnsync refresh'")
		return
	}

	fmt.Printf("Points:    %d\n", out.Points)

	if out.Joined != "" {
		fmt.Printf("Joined:    %s\n", out.Joined)
	}
}
