package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestRecordFillsDefaults(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	e, err := l.Record(ctx, Entry{Path: "/tmp/build-abc123defg", Prefix: "build"})
	require.NoError(t, err)
	require.NotEmpty(t, e.ID)
	require.Equal(t, os.Getpid(), e.PID)
	require.False(t, e.CreatedAt.IsZero())
}

func TestLookup(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	_, err := l.Record(ctx, Entry{Path: "/tmp/build-abc123defg", Prefix: "build"})
	require.NoError(t, err)

	e, found, err := l.Lookup(ctx, "/tmp/build-abc123defg")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "build", e.Prefix)

	_, found, err = l.Lookup(ctx, "/tmp/unknown")
	require.NoError(t, err)
	require.False(t, found)
}

func TestRecordReplacesExistingPath(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	first, err := l.Record(ctx, Entry{Path: "/tmp/build-abc123defg", Prefix: "build"})
	require.NoError(t, err)
	_, err = l.Record(ctx, Entry{Path: "/tmp/build-abc123defg", Prefix: "rebuilt"})
	require.NoError(t, err)

	e, found, err := l.Lookup(ctx, "/tmp/build-abc123defg")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "rebuilt", e.Prefix)
	require.NotEqual(t, first.ID, e.ID)

	all, err := l.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestOlderThan(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	now := time.Now()

	_, err := l.Record(ctx, Entry{Path: "/tmp/old-abc123defg", Prefix: "old", CreatedAt: now.Add(-48 * time.Hour)})
	require.NoError(t, err)
	_, err = l.Record(ctx, Entry{Path: "/tmp/new-abc123defg", Prefix: "new", CreatedAt: now})
	require.NoError(t, err)

	stale, err := l.OlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, "/tmp/old-abc123defg", stale[0].Path)
}

func TestRemove(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	_, err := l.Record(ctx, Entry{Path: "/tmp/build-abc123defg", Prefix: "build"})
	require.NoError(t, err)
	require.NoError(t, l.Remove(ctx, "/tmp/build-abc123defg"))

	_, found, err := l.Lookup(ctx, "/tmp/build-abc123defg")
	require.NoError(t, err)
	require.False(t, found)

	// unknown path is not an error
	require.NoError(t, l.Remove(ctx, "/tmp/unknown"))
}
