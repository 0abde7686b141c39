package session

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(t.TempDir(), zerolog.Nop())
}

func TestUserID_PersistsAcrossManagers(t *testing.T) {
	dir := t.TempDir()

	m1 := NewManager(dir, zerolog.Nop())
	first := m1.UserID()
	require.NotEmpty(t, first)

	// A second manager over the same store observes the same id.
	m2 := NewManager(dir, zerolog.Nop())
	assert.Equal(t, first, m2.UserID())
}

func TestUserID_StableWithinRun(t *testing.T) {
	m := newTestManager(t)
	assert.Equal(t, m.UserID(), m.UserID())
}

func TestUserID_ConcurrentFirstCallsAgree(t *testing.T) {
	m := newTestManager(t)

	const callers = 16
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = m.UserID()
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestUserID_UnwritableStoreFallsBackToMemory(t *testing.T) {
	m := NewManager("", zerolog.Nop(),
		WithStorePath(filepath.Join(t.TempDir(), "missing", "deep", "identity.json")))

	// Force the mkdir to fail by shadowing the parent with a file.
	parent := filepath.Dir(filepath.Dir(m.storePath))
	require.NoError(t, os.WriteFile(parent, []byte("not a dir"), 0644))

	id := m.UserID()
	assert.NotEmpty(t, id, "identity must degrade to in-memory, not fail")
	assert.Equal(t, id, m.UserID())
}

func TestUserID_CorruptStoreRegenerates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identity.json")
	require.NoError(t, os.WriteFile(path, []byte("{garbage"), 0600))

	m := NewManager(dir, zerolog.Nop())
	assert.NotEmpty(t, m.UserID())
}

func TestSessionID_GeneratedOncePerRun(t *testing.T) {
	m := newTestManager(t)
	assert.Equal(t, m.SessionID(), m.SessionID())
	assert.NotEmpty(t, m.SessionID())
}

func TestStartNewSession_ReplacesSessionOnly(t *testing.T) {
	m := newTestManager(t)
	user := m.UserID()
	session := m.SessionID()

	m.StartNewSession()

	assert.NotEqual(t, session, m.SessionID())
	assert.Equal(t, user, m.UserID())
}

func TestClearSession_WipesBothIDs(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, zerolog.Nop())

	user := m.UserID()
	session := m.SessionID()

	m.ClearSession()

	_, err := os.Stat(filepath.Join(dir, "identity.json"))
	assert.True(t, os.IsNotExist(err), "persisted identity must be removed")

	assert.NotEqual(t, user, m.UserID())
	assert.NotEqual(t, session, m.SessionID())
}
