package catalog

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SyntheticOwner is the owner recorded for files a storage server
// advertises at registration time that the catalog has never seen.
const SyntheticOwner = "ss_owner"

// AccessLevel is a file access grant. Write implies read.
type AccessLevel byte

const (
	AccessRead  AccessLevel = 'R'
	AccessWrite AccessLevel = 'W'
)

// ParseAccessLevel parses the wire form of an access level ("R" or "W").
func ParseAccessLevel(s string) (AccessLevel, error) {
	switch strings.ToUpper(s) {
	case "R":
		return AccessRead, nil
	case "W":
		return AccessWrite, nil
	}
	return 0, fmt.Errorf("invalid access level %q", s)
}

func (l AccessLevel) String() string {
	return string(rune(l))
}

// Endpoint identifies a storage server by address. FileMetadata stores an
// Endpoint value rather than a pointer into the registry: the association
// is lookup-only, never ownership.
type Endpoint struct {
	IP   string
	Port int
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.IP, e.Port)
}

// IsZero reports whether the endpoint is unset (catalog-only rows such as
// folders have no storage server).
func (e Endpoint) IsZero() bool {
	return e.IP == "" && e.Port == 0
}

// User is a registered client identity. Registration is idempotent on the
// username; re-registration only refreshes the address.
type User struct {
	Username string
	LastAddr string
}

// StorageServer is a registry entry for a registered storage server.
type StorageServer struct {
	Endpoint   Endpoint
	KnownFiles []string
	Registered time.Time
}

// FileMetadata is a single catalog row. The catalog is the only source of
// truth for permissions; storage servers trust the name server to gate
// mutating operations.
type FileMetadata struct {
	Filename    string
	Owner       string
	SS          Endpoint
	WordCount   int
	CharCount   int
	LastAccess  time.Time
	Access      map[string]AccessLevel // non-owner grants; owner is implicit RW
	Pending     []string               // ordered access requests
	Annotation  string
	IsDirectory bool
}

// allows reports whether user may perform an operation at the given
// level. The owner always may; a W grant implies R.
func (m *FileMetadata) allows(user string, level AccessLevel) bool {
	if m.Owner == user {
		return true
	}
	granted, ok := m.Access[user]
	if !ok {
		return false
	}
	return granted == AccessWrite || granted == level
}

// snapshot copies the row into a FileInfo so no internal pointer escapes
// the catalog lock.
func (m *FileMetadata) snapshot() FileInfo {
	access := make(map[string]AccessLevel, len(m.Access))
	for u, l := range m.Access {
		access[u] = l
	}
	pending := append([]string(nil), m.Pending...)
	return FileInfo{
		Filename:    m.Filename,
		Owner:       m.Owner,
		SS:          m.SS,
		WordCount:   m.WordCount,
		CharCount:   m.CharCount,
		LastAccess:  m.LastAccess,
		Access:      access,
		Pending:     pending,
		Annotation:  m.Annotation,
		IsDirectory: m.IsDirectory,
	}
}

// FileInfo is a read-only copy of a catalog row.
type FileInfo struct {
	Filename    string
	Owner       string
	SS          Endpoint
	WordCount   int
	CharCount   int
	LastAccess  time.Time
	Access      map[string]AccessLevel
	Pending     []string
	Annotation  string
	IsDirectory bool
}

// AccessList renders the grants in deterministic order, e.g.
// "bob:R, carol:W".
func (fi FileInfo) AccessList() string {
	if len(fi.Access) == 0 {
		return ""
	}
	users := make([]string, 0, len(fi.Access))
	for u := range fi.Access {
		users = append(users, u)
	}
	sort.Strings(users)
	parts := make([]string, len(users))
	for i, u := range users {
		parts[i] = fmt.Sprintf("%s:%s", u, fi.Access[u])
	}
	return strings.Join(parts, ", ")
}

// Folder returns the folder component of a filename ("docs" for
// "docs/notes.txt") or the empty string for top-level names.
func Folder(filename string) string {
	dir, _, found := strings.Cut(filename, "/")
	if !found {
		return ""
	}
	return dir
}
