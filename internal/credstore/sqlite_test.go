// ABOUTME: Tests for the SQLite credential store
// ABOUTME: Covers roundtrip, overwrite and missing-key behavior

package credstore

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "credentials.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestSQLiteStoreRoundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := testContext(t)

	blob := []byte("opaque-credential-blob")
	require.NoError(t, store.Save(ctx, "session", blob))

	got, err := store.Load(ctx, "session")
	require.NoError(t, err)
	assert.Equal(t, blob, got)
}

func TestSQLiteStoreOverwrite(t *testing.T) {
	store := newTestStore(t)
	ctx := testContext(t)

	require.NoError(t, store.Save(ctx, "session", []byte("first")))
	require.NoError(t, store.Save(ctx, "session", []byte("second")))

	got, err := store.Load(ctx, "session")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestSQLiteStoreMissingKey(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load(testContext(t), "never-saved")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStoreUsesInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "credentials.db"), logger)
	require.NoError(t, err)
	defer store.Close()

	assert.Contains(t, buf.String(), "credential store initialized")
}

func TestSQLiteStoreKeysAreIndependent(t *testing.T) {
	store := newTestStore(t)
	ctx := testContext(t)

	require.NoError(t, store.Save(ctx, "a", []byte("alpha")))
	require.NoError(t, store.Save(ctx, "b", []byte("beta")))

	got, err := store.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("alpha"), got)
}

// testContext returns a context that is canceled when the test ends.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
