package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return st
}

func TestStoreCreateExclusive(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.Create("notes.txt"))
	data, err := st.Read("notes.txt")
	require.NoError(t, err)
	assert.Empty(t, data)

	assert.ErrorIs(t, st.Create("notes.txt"), ErrFileExists)
}

func TestStoreCreateInFolder(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.Create("docs/a.txt"))
	_, err := st.Read("docs/a.txt")
	assert.NoError(t, err)
}

func TestStoreRejectsUnsafeNames(t *testing.T) {
	st := newTestStore(t)

	for _, name := range []string{"../escape", "a;b", "a\nb", `a\b`, "", "a/b/c"} {
		assert.Error(t, st.Create(name), name)
	}
}

func TestStoreDelete(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.Create("a.txt"))
	require.NoError(t, st.Delete("a.txt"))
	_, err := st.Read("a.txt")
	assert.ErrorIs(t, err, ErrFileNotFound)

	assert.ErrorIs(t, st.Delete("a.txt"), ErrFileNotFound)
}

func TestStoreCommitAndBackup(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Create("notes.txt"))

	err := st.Commit("notes.txt", 0, []Edit{
		{WordIdx: 0, Content: "Hello"},
		{WordIdx: 1, Content: "world."},
	})
	require.NoError(t, err)

	data, err := st.Read("notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "Hello world.", string(data))

	// The backup holds the pre-commit contents: empty.
	bak, err := os.ReadFile(filepath.Join(st.Root(), "notes.txt.bak"))
	require.NoError(t, err)
	assert.Empty(t, bak)

	// No temp file survives a commit.
	_, err = os.Stat(filepath.Join(st.Root(), "notes.txt.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestStoreCommitKeepsSingleBackupLevel(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Create("a.txt"))

	require.NoError(t, st.Commit("a.txt", 0, []Edit{{WordIdx: 0, Content: "One."}}))
	require.NoError(t, st.Commit("a.txt", 0, []Edit{{WordIdx: 1, Content: "Two."}}))

	data, err := st.Read("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "One. Two.", string(data))

	// Backup is the state before the second commit, not the first.
	bak, err := os.ReadFile(filepath.Join(st.Root(), "a.txt.bak"))
	require.NoError(t, err)
	assert.Equal(t, "One.", string(bak))
}

func TestStoreCommitMissingFile(t *testing.T) {
	st := newTestStore(t)
	err := st.Commit("ghost.txt", 0, []Edit{{WordIdx: 0, Content: "x"}})
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestStoreUndoRoundTrip(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Create("notes.txt"))
	require.NoError(t, st.Commit("notes.txt", 0, []Edit{{WordIdx: 0, Content: "Hello."}}))

	require.NoError(t, st.Undo("notes.txt"))

	// Byte-for-byte restore of the pre-commit content.
	data, err := st.Read("notes.txt")
	require.NoError(t, err)
	assert.Empty(t, data)

	// The backup is consumed; a second undo has nothing to restore.
	assert.ErrorIs(t, st.Undo("notes.txt"), ErrNoBackup)
}

func TestStoreUndoWithoutCommit(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Create("a.txt"))
	assert.ErrorIs(t, st.Undo("a.txt"), ErrNoBackup)
}

func TestStoreCheckpointRevert(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Create("a.txt"))
	require.NoError(t, st.Commit("a.txt", 0, []Edit{{WordIdx: 0, Content: "v1."}}))

	require.NoError(t, st.Checkpoint("a.txt", "stable"))

	require.NoError(t, st.Commit("a.txt", 0, []Edit{{WordIdx: 0, Content: "v2."}}))
	require.NoError(t, st.Revert("a.txt", "stable"))

	data, err := st.Read("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "v1.", string(data))

	// The pre-revert state lands in .bak, so a revert is undoable.
	require.NoError(t, st.Undo("a.txt"))
	data, err = st.Read("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "v2.", string(data))
}

func TestStoreCheckpointMissing(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Create("a.txt"))

	assert.ErrorIs(t, st.Revert("a.txt", "nope"), ErrNoCheckpoint)
	_, err := st.ReadCheckpoint("a.txt", "nope")
	assert.ErrorIs(t, err, ErrNoCheckpoint)
	assert.ErrorIs(t, st.Checkpoint("ghost.txt", "t"), ErrFileNotFound)
}

func TestStoreReadCheckpoint(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Create("a.txt"))
	require.NoError(t, st.Commit("a.txt", 0, []Edit{{WordIdx: 0, Content: "snap."}}))
	require.NoError(t, st.Checkpoint("a.txt", "v1"))

	data, err := st.ReadCheckpoint("a.txt", "v1")
	require.NoError(t, err)
	assert.Equal(t, "snap.", string(data))
}

func TestStoreDeleteCleansArtifacts(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Create("a.txt"))
	require.NoError(t, st.Commit("a.txt", 0, []Edit{{WordIdx: 0, Content: "x."}}))
	require.NoError(t, st.Checkpoint("a.txt", "v1"))

	require.NoError(t, st.Delete("a.txt"))

	_, err := os.Stat(filepath.Join(st.Root(), "a.txt.bak"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(st.Root(), checkpointDir, "a.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestStoreList(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Create("b.txt"))
	require.NoError(t, st.Create("a.txt"))
	require.NoError(t, st.Create("docs/c.txt"))
	require.NoError(t, st.Commit("a.txt", 0, []Edit{{WordIdx: 0, Content: "x."}}))
	require.NoError(t, st.Checkpoint("a.txt", "v1"))

	names, err := st.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "docs/c.txt"}, names)
}
