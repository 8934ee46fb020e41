package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/satellite-operations/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndGetCheck(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	err := store.RecordCheck(&types.CheckRecord{SourceID: "1", CheckedAt: now, Status: types.StatusAvailable})
	require.NoError(t, err)

	rec, err := store.GetCheck("1")
	require.NoError(t, err)
	assert.Equal(t, "1", rec.SourceID)
	assert.True(t, now.Equal(rec.CheckedAt))
	assert.Equal(t, types.StatusAvailable, rec.Status)

	// upsert
	later := now.Add(time.Minute)
	require.NoError(t, store.RecordCheck(&types.CheckRecord{SourceID: "1", CheckedAt: later}))
	rec, err = store.GetCheck("1")
	require.NoError(t, err)
	assert.True(t, later.Equal(rec.CheckedAt))

	checks, err := store.ListChecks()
	require.NoError(t, err)
	assert.Len(t, checks, 1)
}

func TestGetCheckNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetCheck("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordCheckRequiresSourceID(t *testing.T) {
	store := newTestStore(t)
	assert.Error(t, store.RecordCheck(&types.CheckRecord{}))
}

func TestDeleteCheck(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.RecordCheck(&types.CheckRecord{SourceID: "1", CheckedAt: time.Now()}))
	require.NoError(t, store.DeleteCheck("1"))

	_, err := store.GetCheck("1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirectives(t *testing.T) {
	store := newTestStore(t)

	assert.Error(t, store.SaveDirective(&types.CheckRecord{SourceID: "1"}))

	require.NoError(t, store.SaveDirective(&types.CheckRecord{SourceID: "1", MessageID: "abc"}))
	require.NoError(t, store.SaveDirective(&types.CheckRecord{SourceID: "2", MessageID: "xyz"}))

	directives, err := store.ListDirectives()
	require.NoError(t, err)
	assert.Len(t, directives, 2)

	require.NoError(t, store.DeleteDirective("abc"))
	directives, err = store.ListDirectives()
	require.NoError(t, err)
	require.Len(t, directives, 1)
	assert.Equal(t, "xyz", directives[0].MessageID)
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.SaveDirective(&types.CheckRecord{SourceID: "1", MessageID: "abc"}))
	require.NoError(t, store.Close())

	store, err = NewBoltStore(dir)
	require.NoError(t, err)
	defer store.Close()

	directives, err := store.ListDirectives()
	require.NoError(t, err)
	assert.Len(t, directives, 1)
}

func TestPruneChecks(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	require.NoError(t, store.RecordCheck(&types.CheckRecord{SourceID: "old", CheckedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, store.RecordCheck(&types.CheckRecord{SourceID: "new", CheckedAt: now}))

	pruned, err := store.PruneChecks(now.Add(-24*time.Hour), true)
	require.NoError(t, err)
	require.Len(t, pruned, 1)
	assert.Equal(t, "old", pruned[0].SourceID)

	checks, err := store.ListChecks()
	require.NoError(t, err)
	assert.Len(t, checks, 2, "dry run keeps records")

	pruned, err = store.PruneChecks(now.Add(-24*time.Hour), false)
	require.NoError(t, err)
	assert.Len(t, pruned, 1)

	_, err = store.GetCheck("old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetCheck("new")
	assert.NoError(t, err)
}

func TestBackup(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.RecordCheck(&types.CheckRecord{SourceID: "1", CheckedAt: time.Now()}))

	backupDir := t.TempDir()
	require.NoError(t, store.Backup(filepath.Join(backupDir, DBFile)))

	restored, err := NewBoltStore(backupDir)
	require.NoError(t, err)
	defer restored.Close()

	rec, err := restored.GetCheck("1")
	require.NoError(t, err)
	assert.Equal(t, "1", rec.SourceID)
}
