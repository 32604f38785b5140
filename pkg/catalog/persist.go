package catalog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/scribefs/scribefs/internal/logger"
)

// Persistent state layout: two plain-text files in the data directory.
//
//	user_data.dat      one username per line
//	file_metadata.dat  filename;owner;ss_ip;ss_port[;user,perm]*
//
// Folder rows use "-" for ss_ip and 0 for ss_port. The owner's implicit
// W grant is never stored and is re-injected by the permission check.
// Both files are rewritten wholesale on every mutation, via a temp file
// and an atomic rename.
const (
	userDataFile     = "user_data.dat"
	fileMetadataFile = "file_metadata.dat"

	folderSentinel = "-"
)

// writeFileAtomic writes data to path through a sibling temp file and a
// rename, so a crash mid-write never truncates the previous state.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// persistUsersLocked rewrites user_data.dat. Caller holds s.mu. Failures
// are logged, not returned: losing a persistence write must not fail the
// in-flight request.
func (s *Service) persistUsersLocked() {
	if s.dataDir == "" {
		return
	}
	var b strings.Builder
	for _, u := range s.users {
		b.WriteString(u.Username)
		b.WriteByte('\n')
	}
	path := filepath.Join(s.dataDir, userDataFile)
	if err := writeFileAtomic(path, []byte(b.String())); err != nil {
		logger.Error("persisting users failed", logger.Err(err))
	}
}

// persistFilesLocked rewrites file_metadata.dat. Caller holds s.mu.
func (s *Service) persistFilesLocked() {
	if s.dataDir == "" {
		return
	}
	var b strings.Builder
	for _, m := range s.files {
		b.WriteString(m.Filename)
		b.WriteByte(';')
		b.WriteString(m.Owner)
		b.WriteByte(';')
		if m.IsDirectory {
			b.WriteString(folderSentinel)
			b.WriteString(";0")
		} else {
			b.WriteString(m.SS.IP)
			b.WriteByte(';')
			b.WriteString(strconv.Itoa(m.SS.Port))
		}
		for _, u := range sortedGrants(m.Access) {
			fmt.Fprintf(&b, ";%s,%s", u, m.Access[u])
		}
		b.WriteByte('\n')
	}
	path := filepath.Join(s.dataDir, fileMetadataFile)
	if err := writeFileAtomic(path, []byte(b.String())); err != nil {
		logger.Error("persisting file metadata failed", logger.Err(err))
	}
}

// loadUsers reads user_data.dat. A missing file is a clean first start.
func (s *Service) loadUsers() error {
	if s.dataDir == "" {
		return nil
	}
	f, err := os.Open(filepath.Join(s.dataDir, userDataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		if _, ok := s.userIndex[name]; ok {
			continue
		}
		u := &User{Username: name}
		s.users = append(s.users, u)
		s.userIndex[name] = u
	}
	return scanner.Err()
}

// LoadCatalog reads file_metadata.dat against the current registry. Rows
// whose storage server is not registered are skipped, not retained:
// after a cold start the file catalog is rebuilt from storage server
// registrations instead. Folder rows are always kept.
func (s *Service) LoadCatalog() error {
	if s.dataDir == "" {
		return nil
	}
	f, err := os.Open(filepath.Join(s.dataDir, fileMetadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	registered := make(map[Endpoint]bool, len(s.sservers))
	for _, ss := range s.sservers {
		registered[ss.Endpoint] = true
	}

	scanner := bufio.NewScanner(f)
	skipped := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		m, err := parseMetadataLine(line)
		if err != nil {
			logger.Warn("skipping malformed metadata row", "line", line, logger.Err(err))
			continue
		}
		if !m.IsDirectory && !registered[m.SS] {
			skipped++
			continue
		}
		if s.lookupLocked(m.Filename) != nil {
			continue
		}
		s.installLocked(m)
	}
	if skipped > 0 {
		logger.Info("skipped metadata rows with unregistered storage servers", "skipped", skipped)
	}
	return scanner.Err()
}

// parseMetadataLine parses filename;owner;ss_ip;ss_port[;user,perm]*.
func parseMetadataLine(line string) (*FileMetadata, error) {
	fields := strings.Split(line, ";")
	if len(fields) < 4 {
		return nil, fmt.Errorf("expected at least 4 fields, got %d", len(fields))
	}
	m := &FileMetadata{
		Filename: fields[0],
		Owner:    fields[1],
		Access:   make(map[string]AccessLevel),
	}
	if fields[2] == folderSentinel {
		m.IsDirectory = true
	} else {
		port, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, fmt.Errorf("bad port %q: %w", fields[3], err)
		}
		m.SS = Endpoint{IP: fields[2], Port: port}
	}
	for _, grant := range fields[4:] {
		user, perm, found := strings.Cut(grant, ",")
		if !found || user == "" {
			return nil, fmt.Errorf("bad grant %q", grant)
		}
		level, err := ParseAccessLevel(perm)
		if err != nil {
			return nil, err
		}
		// The owner's W is implicit; never store it back.
		if user == m.Owner {
			continue
		}
		m.Access[user] = level
	}
	return m, nil
}
