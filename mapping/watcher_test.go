package mapping

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMappingFile(t *testing.T, path, apiKey string) {
	t.Helper()
	content := "user_mappings:\n  alice@example.com:\n    iriusrisk_api_key: " + apiKey + "\n    iriusrisk_hostname: https://acme.iriusrisk.com\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mappings.yaml")
	writeMappingFile(t, path, "key-v1")

	store := New(slog.Default())
	require.NoError(t, store.LoadFile(path))

	reloaded := make(chan error, 4)
	w := NewWatcher(store, WatcherConfig{
		Path:             path,
		DebounceInterval: 20 * time.Millisecond,
		OnReload:         func(err error) { reloaded <- err },
	})
	require.NoError(t, w.Start())
	defer func() { _ = w.Stop() }()

	assert.True(t, w.IsRunning())

	writeMappingFile(t, path, "key-v2")

	select {
	case err := <-reloaded:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cred, err := store.Lookup("alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "key-v2", cred.APIKey)
}

func TestWatcher_BrokenEditKeepsPreviousTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mappings.yaml")
	writeMappingFile(t, path, "key-v1")

	store := New(slog.Default())
	require.NoError(t, store.LoadFile(path))

	reloaded := make(chan error, 4)
	w := NewWatcher(store, WatcherConfig{
		Path:             path,
		DebounceInterval: 20 * time.Millisecond,
		OnReload:         func(err error) { reloaded <- err },
	})
	require.NoError(t, w.Start())
	defer func() { _ = w.Stop() }()

	require.NoError(t, os.WriteFile(path, []byte("user_mappings: [broken"), 0o600))

	select {
	case err := <-reloaded:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cred, err := store.Lookup("alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "key-v1", cred.APIKey)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mappings.yaml")
	writeMappingFile(t, path, "key-v1")

	w := NewWatcher(New(slog.Default()), WatcherConfig{Path: path})
	require.NoError(t, w.Start())

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mappings.yaml")
	writeMappingFile(t, path, "key-v1")

	store := New(slog.Default())
	require.NoError(t, store.LoadFile(path))

	reloaded := make(chan error, 4)
	w := NewWatcher(store, WatcherConfig{
		Path:             path,
		DebounceInterval: 20 * time.Millisecond,
		OnReload:         func(err error) { reloaded <- err },
	})
	require.NoError(t, w.Start())
	defer func() { _ = w.Stop() }()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1"), 0o600))

	select {
	case <-reloaded:
		t.Fatal("reload triggered for unrelated file")
	case <-time.After(200 * time.Millisecond):
	}
}
