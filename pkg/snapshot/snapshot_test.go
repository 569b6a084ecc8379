package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeTool_BackupProducesStableShortID(t *testing.T) {
	f := NewFakeTool()
	snap, err := f.Backup(context.Background(), "/data/vanilla/world")
	require.NoError(t, err)

	assert.Len(t, snap.ID, 64)
	assert.Equal(t, snap.ID[:8], snap.ShortID)
	assert.Equal(t, []string{"/data/vanilla/world"}, snap.Paths)
}

func TestFakeTool_BackupRejectsRelativePath(t *testing.T) {
	f := NewFakeTool()
	_, err := f.Backup(context.Background(), "data/vanilla/world")
	assert.Error(t, err)
}

func TestFakeTool_ListNewestFirst(t *testing.T) {
	f := NewFakeTool()
	ctx := context.Background()
	first, err := f.Backup(ctx, "/data/vanilla/world")
	require.NoError(t, err)
	second, err := f.Backup(ctx, "/data/vanilla/world")
	require.NoError(t, err)

	snaps, err := f.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, second.ID, snaps[0].ID)
	assert.Equal(t, first.ID, snaps[1].ID)
}

func TestFakeTool_ListFiltersByPath(t *testing.T) {
	f := NewFakeTool()
	ctx := context.Background()
	_, err := f.Backup(ctx, "/data/vanilla/world")
	require.NoError(t, err)
	_, err = f.Backup(ctx, "/data/modded/world")
	require.NoError(t, err)

	snaps, err := f.List(ctx, "/data/modded/world")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, []string{"/data/modded/world"}, snaps[0].Paths)
}

func TestFakeTool_RestorePreviewUnknownSnapshot(t *testing.T) {
	f := NewFakeTool()
	_, err := f.RestorePreview(context.Background(), "does-not-exist", "/tmp/restore", "")
	assert.Error(t, err)
}

func TestFakeTool_RestorePreviewAndRestore(t *testing.T) {
	f := NewFakeTool()
	ctx := context.Background()
	snap, err := f.Backup(ctx, "/data/vanilla/world")
	require.NoError(t, err)

	actions, err := f.RestorePreview(ctx, snap.ID, "/tmp/restore", "")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "restored", actions[0].Action)

	assert.NoError(t, f.Restore(ctx, snap.ID, "/tmp/restore", ""))
}

func TestFakeTool_ForgetKeepsMostRecent(t *testing.T) {
	f := NewFakeTool()
	ctx := context.Background()
	_, err := f.Backup(ctx, "/data/a")
	require.NoError(t, err)
	_, err = f.Backup(ctx, "/data/b")
	require.NoError(t, err)
	third, err := f.Backup(ctx, "/data/c")
	require.NoError(t, err)

	require.NoError(t, f.Forget(ctx, 1, false))

	snaps, err := f.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, third.ID, snaps[0].ID)
}

func TestFakeTool_LockAndUnlock(t *testing.T) {
	f := NewFakeTool()
	ctx := context.Background()
	f.Lock("lock-1")

	locks, err := f.ListLocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"lock-1"}, locks)

	require.NoError(t, f.Unlock(ctx))
	locks, err = f.ListLocks(ctx)
	require.NoError(t, err)
	assert.Empty(t, locks)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abcd1234", shortID("abcd1234ef567890"))
	assert.Equal(t, "ab", shortID("ab"))
}
