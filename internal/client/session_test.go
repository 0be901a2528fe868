package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStoreRoundTrip(t *testing.T) {
	store := NewSessionStore(filepath.Join(t.TempDir(), "nested", "session.json"))

	_, ok, err := store.Load()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(Session{RoomID: "ABC123", PlayerID: "k3j9x0a", Token: "tok"}))
	sess, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ABC123", sess.RoomID)
	assert.Equal(t, "k3j9x0a", sess.PlayerID)
	assert.Equal(t, "tok", sess.Token)
	assert.False(t, sess.SavedAt.IsZero())

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())
	_, ok, err = store.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))

	_, ok, err := NewSessionStore(path).Load()
	assert.Error(t, err)
	assert.False(t, ok)
}
