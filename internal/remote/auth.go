package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/learnsync/internal/session"
	"github.com/tonimelisma/learnsync/internal/tokenfile"
)

// OAuthSettings locates the service's OAuth2 endpoints.
type OAuthSettings struct {
	ClientID      string
	AuthURL       string
	TokenURL      string
	DeviceAuthURL string
	Scopes        []string
}

// DeviceAuth holds what the CLI shows the user during device-code sign-in.
type DeviceAuth struct {
	UserCode        string
	VerificationURI string
}

// Login runs the device-code flow: it requests a code, calls display so the
// user can authorise it, polls until they do and saves the token at
// tokenPath. ctx must outlive the returned TokenSource, since silent
// refreshes use it.
func Login(
	ctx context.Context,
	settings OAuthSettings,
	tokenPath string,
	display func(DeviceAuth),
	logger *slog.Logger,
) (TokenSource, error) {
	return doLogin(ctx, oauthConfig(settings, tokenPath, logger), tokenPath, display, time.Now, logger)
}

func doLogin(
	ctx context.Context,
	cfg *oauth2.Config,
	tokenPath string,
	display func(DeviceAuth),
	nowFunc func() time.Time,
	logger *slog.Logger,
) (TokenSource, error) {
	logger.Info("starting device code sign-in", slog.String("path", tokenPath))

	da, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("remote: device auth request failed: %w", err)
	}

	display(DeviceAuth{
		UserCode:        da.UserCode,
		VerificationURI: da.VerificationURI,
	})

	tok, err := cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("remote: device code authorization failed: %w", err)
	}

	if err := tokenfile.Save(tokenPath, tokenfile.File{
		Token:   tok,
		Account: tokenfile.Account{SignedInAt: nowFunc().UTC()},
	}); err != nil {
		return nil, fmt.Errorf("remote: saving token: %w", err)
	}

	logger.Info("sign-in successful",
		slog.String("path", tokenPath),
		slog.Time("expiry", tok.Expiry),
	)

	return &tokenBridge{src: cfg.TokenSource(ctx, tok), logger: logger}, nil
}

// TokenSourceFromPath loads the saved token and returns a refreshing
// TokenSource that persists refreshed tokens. Returns ErrNotLoggedIn when no
// credential file exists.
func TokenSourceFromPath(ctx context.Context, settings OAuthSettings, tokenPath string, logger *slog.Logger) (TokenSource, error) {
	f, err := tokenfile.Load(tokenPath)
	if err != nil {
		return nil, err
	}

	if f == nil {
		return nil, ErrNotLoggedIn
	}

	logger.Debug("loaded saved token",
		slog.String("path", tokenPath),
		slog.Time("expiry", f.Token.Expiry),
	)

	cfg := oauthConfig(settings, tokenPath, logger)

	return &tokenBridge{src: cfg.TokenSource(ctx, f.Token), logger: logger}, nil
}

// IsSignedIn reports whether a usable credential file exists at tokenPath.
func IsSignedIn(tokenPath string) bool {
	f, err := tokenfile.Load(tokenPath)

	return err == nil && f != nil
}

// Logout removes the credential file. Already signed out is not an error.
func Logout(tokenPath string, logger *slog.Logger) error {
	if err := tokenfile.Remove(tokenPath); err != nil {
		return fmt.Errorf("remote: signing out: %w", err)
	}

	logger.Info("signed out", slog.String("path", tokenPath))

	return nil
}

// SaveAccount records the profile identity next to the token so whoami can
// answer offline.
func SaveAccount(tokenPath string, p session.Profile) error {
	f, err := tokenfile.Load(tokenPath)
	if err != nil {
		return fmt.Errorf("remote: saving account: %w", err)
	}

	if f == nil {
		return ErrNotLoggedIn
	}

	acct := f.Account
	acct.Nickname = p.Nickname
	acct.Username = p.Username

	return tokenfile.UpdateAccount(tokenPath, acct)
}

// LoadAccount returns the cached account metadata.
func LoadAccount(tokenPath string) (tokenfile.Account, error) {
	f, err := tokenfile.Load(tokenPath)
	if err != nil {
		return tokenfile.Account{}, err
	}

	if f == nil {
		return tokenfile.Account{}, ErrNotLoggedIn
	}

	return f.Account, nil
}

// oauthConfig builds the oauth2 config with refreshed tokens written back to
// tokenPath. OnTokenChange runs after each silent refresh.
func oauthConfig(settings OAuthSettings, tokenPath string, logger *slog.Logger) *oauth2.Config {
	return &oauth2.Config{
		ClientID: settings.ClientID,
		Scopes:   settings.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:       settings.AuthURL,
			TokenURL:      settings.TokenURL,
			DeviceAuthURL: settings.DeviceAuthURL,
		},
		OnTokenChange: func(tok *oauth2.Token) {
			if err := tokenfile.SaveToken(tokenPath, tok); err != nil {
				logger.Warn("failed to persist refreshed token",
					slog.String("path", tokenPath),
					slog.String("error", err.Error()),
				)

				return
			}

			logger.Debug("persisted refreshed token",
				slog.String("path", tokenPath),
				slog.Time("expiry", tok.Expiry),
			)
		},
	}
}

// tokenBridge adapts oauth2.TokenSource to TokenSource.
type tokenBridge struct {
	src    oauth2.TokenSource
	logger *slog.Logger
}

func (b *tokenBridge) Token() (string, error) {
	t, err := b.src.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			b.logger.Warn("token refresh rejected", slog.String("error_code", re.ErrorCode))
			return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}

		return "", fmt.Errorf("remote: obtaining token: %w", err)
	}

	return t.AccessToken, nil
}

// StaticToken is a TokenSource returning a fixed token.
type StaticToken string

// Token returns the fixed token.
func (s StaticToken) Token() (string, error) {
	return string(s), nil
}
