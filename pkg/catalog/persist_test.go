package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistUsers(t *testing.T) {
	dir := t.TempDir()

	s, err := NewService(Config{DataDir: dir})
	require.NoError(t, err)
	_, err = s.RegisterUser("alice", "10.0.0.1")
	require.NoError(t, err)
	_, err = s.RegisterUser("bob", "10.0.0.2")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "user_data.dat"))
	require.NoError(t, err)
	assert.Equal(t, "alice\nbob\n", string(data))

	// A fresh service in the same directory loads them back.
	s2, err := NewService(Config{DataDir: dir})
	require.NoError(t, err)
	users := s2.Users()
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "bob", users[1].Username)
}

func TestPersistFileMetadataFormat(t *testing.T) {
	dir := t.TempDir()

	s, err := NewService(Config{DataDir: dir})
	require.NoError(t, err)
	_, _ = s.RegisterUser("alice", "")
	_, _ = s.RegisterUser("bob", "")
	ep, err := s.RegisterStorageServer("127.0.0.1", 9001, nil)
	require.NoError(t, err)

	require.NoError(t, s.InstallFile("notes.txt", "alice", ep))
	data, err := os.ReadFile(filepath.Join(dir, "file_metadata.dat"))
	require.NoError(t, err)
	assert.Equal(t, "notes.txt;alice;127.0.0.1;9001\n", string(data))

	require.NoError(t, s.Grant("notes.txt", "alice", "bob", AccessRead))
	data, err = os.ReadFile(filepath.Join(dir, "file_metadata.dat"))
	require.NoError(t, err)
	assert.Equal(t, "notes.txt;alice;127.0.0.1;9001;bob,R\n", string(data))
}

func TestLoadCatalogSkipsUnregisteredStorage(t *testing.T) {
	dir := t.TempDir()
	meta := "a.txt;alice;127.0.0.1;9001\nb.txt;bob;127.0.0.1;9002;alice,R\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file_metadata.dat"), []byte(meta), 0o644))

	// Cold start: no storage server registered, every file row skipped.
	s, err := NewService(Config{DataDir: dir})
	require.NoError(t, err)
	assert.Equal(t, 0, s.Snapshot().Files)

	// With 9001 registered, a reload keeps a.txt and still skips b.txt.
	_, err = s.RegisterStorageServer("127.0.0.1", 9001, nil)
	require.NoError(t, err)
	require.NoError(t, s.LoadCatalog())

	st := s.Snapshot()
	assert.Equal(t, 1, st.Files)
	info, err := s.Info("a.txt", "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", info.Owner)
}

func TestLoadCatalogReinjectsOwnerGrants(t *testing.T) {
	dir := t.TempDir()
	// A historical row that redundantly stored the owner's W grant.
	meta := "a.txt;alice;127.0.0.1;9001;alice,W;bob,R\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file_metadata.dat"), []byte(meta), 0o644))

	s, err := NewService(Config{})
	require.NoError(t, err)
	s.dataDir = dir
	_, err = s.RegisterStorageServer("127.0.0.1", 9001, nil)
	require.NoError(t, err)
	require.NoError(t, s.LoadCatalog())

	info, err := s.Info("a.txt", "alice")
	require.NoError(t, err)
	// Stored owner grant dropped; implicit ownership still authorizes W.
	_, ok := info.Access["alice"]
	assert.False(t, ok)
	_, err = s.RouteFor("a.txt", "alice", AccessWrite)
	assert.NoError(t, err)
	assert.Equal(t, AccessRead, info.Access["bob"])
}

func TestPersistFolders(t *testing.T) {
	dir := t.TempDir()

	s, err := NewService(Config{DataDir: dir})
	require.NoError(t, err)
	require.NoError(t, s.CreateFolder("docs", "alice"))

	data, err := os.ReadFile(filepath.Join(dir, "file_metadata.dat"))
	require.NoError(t, err)
	assert.Equal(t, "docs;alice;-;0\n", string(data))

	// Folder rows survive a cold start even with no storage registered.
	s2, err := NewService(Config{DataDir: dir})
	require.NoError(t, err)
	assert.Equal(t, 1, s2.Snapshot().Files)
	_, err = s2.ViewFolder("docs", "alice")
	assert.NoError(t, err)
}

func TestLoadCatalogMalformedRows(t *testing.T) {
	dir := t.TempDir()
	meta := "short;line\nok.txt;alice;127.0.0.1;9001\nbad.txt;x;127.0.0.1;notaport\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file_metadata.dat"), []byte(meta), 0o644))

	s, err := NewService(Config{})
	require.NoError(t, err)
	s.dataDir = dir
	_, err = s.RegisterStorageServer("127.0.0.1", 9001, nil)
	require.NoError(t, err)
	require.NoError(t, s.LoadCatalog())

	assert.Equal(t, 1, s.Snapshot().Files)
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.dat")

	require.NoError(t, writeFileAtomic(path, []byte("v1\n")))
	require.NoError(t, writeFileAtomic(path, []byte("v2\n")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v2\n", string(data))

	// No temp file left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
