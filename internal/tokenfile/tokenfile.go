// Package tokenfile reads and writes the credential file: the OAuth2 token of
// the signed-in account plus a little account metadata, so commands like
// whoami can answer without a network round trip.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

// FilePerms restricts the credential file to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the data directory.
const DirPerms = 0o700

// ErrMissingToken is returned when a credential file exists but holds no token.
var ErrMissingToken = errors.New("tokenfile: file has no token (sign in again)")

// Account is cached metadata about the signed-in account.
type Account struct {
	Nickname   string    `json:"nickname,omitempty"`
	Username   string    `json:"username,omitempty"`
	SignedInAt time.Time `json:"signed_in_at,omitzero"`
}

// File is the on-disk credential format.
type File struct {
	Token   *oauth2.Token `json:"token"`
	Account Account       `json:"account"`
}

// Load reads the credential file. Returns (nil, nil) when it does not exist.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not signed in"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if f.Token == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingToken, path)
	}

	return &f, nil
}

// Save writes f atomically with owner-only permissions. The temp file lives in
// the target directory so the final rename stays on one filesystem.
func Save(path string, f File) error {
	if f.Token == nil {
		return ErrMissingToken
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	if err := writeSynced(tmp, data); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	return nil
}

// writeSynced chmods, writes, fsyncs and closes tmp.
func writeSynced(tmp *os.File, data []byte) error {
	if err := tmp.Chmod(FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	return nil
}

// SaveToken replaces the token and keeps whatever account metadata is
// already on disk. Used by the token-refresh callback.
func SaveToken(path string, tok *oauth2.Token) error {
	existing, err := Load(path)
	if err != nil && !errors.Is(err, ErrMissingToken) {
		return err
	}

	f := File{Token: tok}
	if existing != nil {
		f.Account = existing.Account
	}

	return Save(path, f)
}

// UpdateAccount rewrites the account metadata of an existing credential file.
func UpdateAccount(path string, acct Account) error {
	f, err := Load(path)
	if err != nil {
		return fmt.Errorf("tokenfile: loading for account update: %w", err)
	}

	if f == nil {
		return fmt.Errorf("tokenfile: no credential file at %s", path)
	}

	f.Account = acct

	return Save(path, *f)
}

// Remove deletes the credential file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile: removing %s: %w", path, err)
	}

	return nil
}
