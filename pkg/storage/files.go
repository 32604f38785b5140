package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/scribefs/scribefs/internal/logger"
	"github.com/scribefs/scribefs/pkg/protocol"
)

// checkpointDir is the sibling tree that holds named snapshots:
// <root>/.checkpoints/<file>/<tag>.
const checkpointDir = ".checkpoints"

var (
	// ErrFileExists is returned by Create when the file is already present.
	ErrFileExists = errors.New("file already exists")

	// ErrFileNotFound is returned when the named file is absent.
	ErrFileNotFound = errors.New("file not found")

	// ErrNoBackup is returned by Undo when no commit has produced a .bak.
	ErrNoBackup = errors.New("no backup to restore")

	// ErrNoCheckpoint is returned when the named snapshot does not exist.
	ErrNoCheckpoint = errors.New("checkpoint not found")
)

// Store owns the bytes under a single root directory. All paths are
// validated against the wire-protocol name rules before touching disk, so
// nothing can escape the root.
type Store struct {
	root string
}

// NewStore opens (creating if needed) the root directory.
func NewStore(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %q: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating root %q: %w", abs, err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute root directory.
func (st *Store) Root() string {
	return st.root
}

// path maps a validated wire name to an absolute path under the root.
func (st *Store) path(name string) (string, error) {
	if err := protocol.ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(st.root, filepath.FromSlash(name)), nil
}

// List walks the root and returns the relative names of all regular
// files, excluding temp, backup, and checkpoint artifacts. Used to
// advertise contents when registering with the name server.
func (st *Store) List() ([]string, error) {
	var names []string
	err := filepath.WalkDir(st.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == checkpointDir {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if strings.HasSuffix(name, ".bak") || strings.HasSuffix(name, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(st.root, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Create makes an empty file exclusively. A file nested one folder deep
// gets its parent directory created on the fly.
func (st *Store) Create(name string) error {
	path, err := st.path(name)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != st.root {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating parent of %q: %w", name, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return ErrFileExists
		}
		return fmt.Errorf("creating %q: %w", name, err)
	}
	return f.Close()
}

// Read returns the full contents of the file.
func (st *Store) Read(name string) ([]byte, error) {
	path, err := st.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return data, nil
}

// Delete unlinks the file along with its backup and checkpoints.
func (st *Store) Delete(name string) error {
	path, err := st.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrFileNotFound
		}
		return err
	}
	if err := os.Remove(path + ".bak"); err != nil && !os.IsNotExist(err) {
		logger.Warn("removing backup failed", logger.Filename(name), logger.Err(err))
	}
	ckDir := filepath.Join(st.root, checkpointDir, filepath.FromSlash(name))
	if err := os.RemoveAll(ckDir); err != nil {
		logger.Warn("removing checkpoints failed", logger.Filename(name), logger.Err(err))
	}
	return nil
}

// Commit applies the buffered edits to sentence n and atomically replaces
// the file, preserving its previous contents as the .bak sibling. The
// sequence is: write <file>.tmp with the rebuilt content, rename <file> to
// <file>.bak, rename <file>.tmp to <file>. A failure after the backup
// rename restores the backup so the file never disappears.
func (st *Store) Commit(name string, sentence int, edits []Edit) error {
	path, err := st.path(name)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrFileNotFound
		}
		return err
	}

	rebuilt, err := ApplyEdits(string(data), sentence, edits)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	bak := path + ".bak"
	if err := os.WriteFile(tmp, []byte(rebuilt), 0o644); err != nil {
		return fmt.Errorf("writing temp for %q: %w", name, err)
	}
	if err := os.Rename(path, bak); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("backing up %q: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		if rerr := os.Rename(bak, path); rerr != nil {
			logger.Error("backup restore failed after commit failure",
				logger.Filename(name), logger.Err(rerr))
		}
		os.Remove(tmp)
		return fmt.Errorf("committing %q: %w", name, err)
	}
	return nil
}

// Undo renames the .bak sibling back over the file, consuming it. One
// level only: a second Undo without an intervening commit fails.
func (st *Store) Undo(name string) error {
	path, err := st.path(name)
	if err != nil {
		return err
	}
	bak := path + ".bak"
	if _, err := os.Stat(bak); err != nil {
		if os.IsNotExist(err) {
			return ErrNoBackup
		}
		return err
	}
	return os.Rename(bak, path)
}

// Checkpoint snapshots the current file contents under
// .checkpoints/<file>/<tag>. Re-checkpointing a tag overwrites it.
func (st *Store) Checkpoint(name, tag string) error {
	path, err := st.path(name)
	if err != nil {
		return err
	}
	if err := protocol.ValidateTag(tag); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrFileNotFound
		}
		return err
	}
	dir := filepath.Join(st.root, checkpointDir, filepath.FromSlash(name))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating checkpoint dir for %q: %w", name, err)
	}
	return os.WriteFile(filepath.Join(dir, tag), data, 0o644)
}

// Revert replaces the file with the named snapshot, keeping the
// pre-revert contents as the .bak sibling so a revert is undoable.
func (st *Store) Revert(name, tag string) error {
	path, err := st.path(name)
	if err != nil {
		return err
	}
	if err := protocol.ValidateTag(tag); err != nil {
		return err
	}
	snap, err := os.ReadFile(filepath.Join(st.root, checkpointDir, filepath.FromSlash(name), tag))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNoCheckpoint
		}
		return err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return ErrFileNotFound
		}
		return err
	}

	tmp := path + ".tmp"
	bak := path + ".bak"
	if err := os.WriteFile(tmp, snap, 0o644); err != nil {
		return fmt.Errorf("writing temp for %q: %w", name, err)
	}
	if err := os.Rename(path, bak); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("backing up %q: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		if rerr := os.Rename(bak, path); rerr != nil {
			logger.Error("backup restore failed after revert failure",
				logger.Filename(name), logger.Err(rerr))
		}
		os.Remove(tmp)
		return fmt.Errorf("reverting %q: %w", name, err)
	}
	return nil
}

// ReadCheckpoint returns the contents of the named snapshot.
func (st *Store) ReadCheckpoint(name, tag string) ([]byte, error) {
	if err := protocol.ValidateName(name); err != nil {
		return nil, err
	}
	if err := protocol.ValidateTag(tag); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(st.root, checkpointDir, filepath.FromSlash(name), tag))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCheckpoint
		}
		return nil, err
	}
	return data, nil
}
