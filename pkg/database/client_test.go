package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "butterfly.db"))
	c, err := NewClient(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewClient_RunsMigrationsAndCreatesTables(t *testing.T) {
	c := newTestClient(t)

	var name string
	err := c.ReadDB().QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='messages'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "messages", name)
}

func TestNewClient_FTSTableExists(t *testing.T) {
	c := newTestClient(t)

	var name string
	err := c.ReadDB().QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='messages_fts'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "messages_fts", name)
}

func TestNewClient_IdempotentReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "butterfly.db")
	cfg := DefaultConfig(path)

	c1, err := NewClient(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, c1.Close())

	c2, err := NewClient(cfg, nil)
	require.NoError(t, err)
	defer c2.Close()

	var count int
	err = c2.ReadDB().QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='messages'`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestHealth_ReportsHealthyStatus(t *testing.T) {
	c := newTestClient(t)
	status, err := Health(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, "healthy", status.Status)
}

func TestWriteDB_SerializesThroughSingleConnection(t *testing.T) {
	c := newTestClient(t)

	c.WriteMu.Lock()
	_, err := c.WriteDB().Exec(`INSERT INTO messages (user_id, role, content, timestamp) VALUES (?, ?, ?, ?)`, "u1", "user", "hello", 1000)
	c.WriteMu.Unlock()
	require.NoError(t, err)

	var count int
	err = c.ReadDB().QueryRow(`SELECT count(*) FROM messages WHERE user_id = ?`, "u1").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
