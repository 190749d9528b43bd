package tokenfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  "access-123",
		RefreshToken: "refresh-456",
		TokenType:    "Bearer",
		Expiry:       time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "token.json"))
	assert.Nil(t, f)
	assert.NoError(t, err)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	signedIn := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, Save(path, File{
		Token:   testToken(),
		Account: Account{Nickname: "alice", Username: "alice@example.com", SignedInAt: signedIn},
	}))

	f, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "access-123", f.Token.AccessToken)
	assert.Equal(t, "refresh-456", f.Token.RefreshToken)
	assert.True(t, f.Token.Expiry.Equal(testToken().Expiry))
	assert.Equal(t, "alice", f.Account.Nickname)
	assert.True(t, f.Account.SignedInAt.Equal(signedIn))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should not be left behind")
}

func TestSave_NilToken(t *testing.T) {
	err := Save(filepath.Join(t.TempDir(), "token.json"), File{})
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestLoad_MissingTokenField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"account":{"nickname":"alice"}}`), FilePerms))

	f, err := Load(path)
	assert.Nil(t, f)
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), FilePerms))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}

func TestSaveToken_KeepsAccount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, Save(path, File{Token: testToken(), Account: Account{Nickname: "alice"}}))

	refreshed := testToken()
	refreshed.AccessToken = "access-789"
	require.NoError(t, SaveToken(path, refreshed))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "access-789", f.Token.AccessToken)
	assert.Equal(t, "alice", f.Account.Nickname)
}

func TestSaveToken_NoExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, SaveToken(path, testToken()))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Account{}, f.Account)
}

func TestUpdateAccount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")

	err := UpdateAccount(path, Account{Nickname: "alice"})
	require.Error(t, err)

	require.NoError(t, Save(path, File{Token: testToken()}))
	require.NoError(t, UpdateAccount(path, Account{Nickname: "alice"}))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "alice", f.Account.Nickname)
	assert.Equal(t, "access-123", f.Token.AccessToken)
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, Save(path, File{Token: testToken()}))

	require.NoError(t, Remove(path))
	require.NoError(t, Remove(path), "second remove is a no-op")

	f, err := Load(path)
	require.NoError(t, err)
	assert.Nil(t, f)
}
