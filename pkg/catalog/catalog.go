// Package catalog implements the name server's authoritative metadata
// store: registered users, the storage server registry, the file catalog
// with its hash index and LRU read cache, and the plain-text persistence
// layer.
//
// One coarse mutex guards all of it together. Any operation that mutates
// catalog state, including cache promotion on a read hit, takes the lock.
// Callers that need to talk to a storage server copy the endpoint out
// under the lock and dial outside it.
package catalog

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/scribefs/scribefs/internal/logger"
	"github.com/scribefs/scribefs/pkg/protocol"
)

// Metrics is the catalog's metrics collector. Implementations live in
// pkg/metrics/prometheus; a nil Metrics disables collection with zero
// overhead.
type Metrics interface {
	// RecordCacheHit records an LRU read-cache hit.
	RecordCacheHit()
	// RecordCacheMiss records an LRU read-cache miss.
	RecordCacheMiss()
	// SetCatalogSize records the current number of catalog rows.
	SetCatalogSize(n int)
}

// Config configures a catalog Service.
type Config struct {
	// DataDir is where user_data.dat and file_metadata.dat live.
	// Empty disables persistence (useful for tests).
	DataDir string

	// CacheCapacity overrides the LRU capacity. Zero means
	// DefaultCacheCapacity.
	CacheCapacity int

	// Metrics is the optional metrics collector.
	Metrics Metrics
}

// Service is the in-memory catalog. The primary file sequence is
// insertion-ordered; the hash index and the LRU cache are maintained in
// lockstep with it.
type Service struct {
	mu sync.Mutex

	users     []*User
	userIndex map[string]*User

	sservers []*StorageServer

	files []*FileMetadata
	index *hashIndex
	cache *lruCache

	dataDir string
	metrics Metrics
}

// NewService creates a catalog and loads persisted users from DataDir.
// Persisted file rows are loaded too, but rows whose storage server is
// not currently registered are skipped, so at cold start the file catalog
// begins empty and is rebuilt from storage server registrations.
func NewService(cfg Config) (*Service, error) {
	s := &Service{
		userIndex: make(map[string]*User),
		index:     newHashIndex(),
		cache:     newLRUCache(cfg.CacheCapacity),
		dataDir:   cfg.DataDir,
		metrics:   cfg.Metrics,
	}
	if err := s.loadUsers(); err != nil {
		return nil, fmt.Errorf("loading users: %w", err)
	}
	if err := s.LoadCatalog(); err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	return s, nil
}

// ============================================================================
// Users
// ============================================================================

// RegisterUser registers a username or refreshes its last known address.
// Returns true when the user was newly created.
func (s *Service) RegisterUser(username, addr string) (bool, error) {
	if err := protocol.ValidateName(username); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.userIndex[username]; ok {
		u.LastAddr = addr
		return false, nil
	}
	u := &User{Username: username, LastAddr: addr}
	s.users = append(s.users, u)
	s.userIndex[username] = u
	s.persistUsersLocked()
	return true, nil
}

// Users returns a snapshot of all registered users in registration order.
func (s *Service) Users() []User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]User, len(s.users))
	for i, u := range s.users {
		out[i] = *u
	}
	return out
}

// ============================================================================
// Storage server registry
// ============================================================================

// RegisterStorageServer adds a storage server to the registry, or
// refreshes its advertisement when (ip, port) is already registered. For
// every advertised file the catalog does not know, a synthetic row owned
// by SyntheticOwner is installed.
func (s *Service) RegisterStorageServer(ip string, port int, files []string) (Endpoint, error) {
	if ip == "" || port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("%w: bad endpoint %s:%d", ErrInvalidName, ip, port)
	}
	ep := Endpoint{IP: ip, Port: port}

	s.mu.Lock()
	defer s.mu.Unlock()

	var entry *StorageServer
	for _, ss := range s.sservers {
		if ss.Endpoint == ep {
			entry = ss
			break
		}
	}
	if entry == nil {
		entry = &StorageServer{Endpoint: ep, Registered: time.Now()}
		s.sservers = append(s.sservers, entry)
	}
	entry.KnownFiles = append([]string(nil), files...)

	adopted := 0
	for _, name := range files {
		if name == "" {
			continue
		}
		if err := protocol.ValidateName(name); err != nil {
			logger.Warn("skipping advertised file with unsafe name", logger.Filename(name), logger.Err(err))
			continue
		}
		if s.lookupLocked(name) != nil {
			continue
		}
		s.installLocked(&FileMetadata{
			Filename:   name,
			Owner:      SyntheticOwner,
			SS:         ep,
			LastAccess: time.Now(),
			Access:     make(map[string]AccessLevel),
		})
		adopted++
	}
	if adopted > 0 {
		s.persistFilesLocked()
	}
	logger.Info("storage server registered",
		logger.Endpoint(ep.String()), "advertised", len(files), "adopted", adopted)
	return ep, nil
}

// StorageServers returns a snapshot of the registry in registration order.
func (s *Service) StorageServers() []StorageServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StorageServer, len(s.sservers))
	for i, ss := range s.sservers {
		out[i] = StorageServer{
			Endpoint:   ss.Endpoint,
			KnownFiles: append([]string(nil), ss.KnownFiles...),
			Registered: ss.Registered,
		}
	}
	return out
}

// ============================================================================
// Lookup path
// ============================================================================

// lookupLocked resolves a filename: LRU cache first, then the hash index
// with promotion into the cache on hit. Caller holds s.mu.
func (s *Service) lookupLocked(filename string) *FileMetadata {
	if m, ok := s.cache.get(filename); ok {
		if s.metrics != nil {
			s.metrics.RecordCacheHit()
		}
		return m
	}
	if s.metrics != nil {
		s.metrics.RecordCacheMiss()
	}
	if m := s.index.get(filename); m != nil {
		s.cache.put(filename, m)
		return m
	}
	return nil
}

// installLocked appends a row to the primary sequence and the hash index.
// Caller holds s.mu.
func (s *Service) installLocked(m *FileMetadata) {
	s.files = append(s.files, m)
	s.index.put(m.Filename, m)
	if s.metrics != nil {
		s.metrics.SetCatalogSize(len(s.files))
	}
}

// removeLocked unlinks a row from the primary sequence, the hash index,
// and the cache, in that order, all before the lock releases. Caller
// holds s.mu.
func (s *Service) removeLocked(filename string) bool {
	for i, m := range s.files {
		if m.Filename == filename {
			s.files = append(s.files[:i], s.files[i+1:]...)
			s.index.remove(filename)
			s.cache.remove(filename)
			if s.metrics != nil {
				s.metrics.SetCatalogSize(len(s.files))
			}
			return true
		}
	}
	return false
}

// ============================================================================
// Create / delete planning
// ============================================================================

// PlanCreate runs the catalog-side pre-checks for CREATE and picks the
// storage server that will host the file: the head of the registry.
// Nothing is installed; the caller installs with InstallFile only after
// the storage server has acknowledged.
func (s *Service) PlanCreate(filename, owner string) (Endpoint, error) {
	if err := protocol.ValidateName(filename); err != nil {
		return Endpoint{}, fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lookupLocked(filename) != nil {
		return Endpoint{}, ErrExists
	}
	if dir := Folder(filename); dir != "" {
		parent := s.lookupLocked(dir)
		if parent == nil || !parent.IsDirectory {
			return Endpoint{}, fmt.Errorf("%w: folder %q", ErrNotFound, dir)
		}
	}
	if len(s.sservers) == 0 {
		return Endpoint{}, ErrNoStorage
	}
	return s.sservers[0].Endpoint, nil
}

// InstallFile installs a freshly created file row. Called only after the
// storage server acknowledged SS_CREATE. Returns ErrExists if another
// session won the race.
func (s *Service) InstallFile(filename, owner string, ss Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lookupLocked(filename) != nil {
		return ErrExists
	}
	s.installLocked(&FileMetadata{
		Filename:   filename,
		Owner:      owner,
		SS:         ss,
		LastAccess: time.Now(),
		Access:     make(map[string]AccessLevel),
	})
	s.persistFilesLocked()
	return nil
}

// RemoveFile removes a file row. Called only after the storage server
// acknowledged SS_DELETE. The cache entry is evicted before the lock
// releases.
func (s *Service) RemoveFile(filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.removeLocked(filename) {
		return ErrNotFound
	}
	s.persistFilesLocked()
	return nil
}

// ============================================================================
// Routing and permission gates
// ============================================================================

// RouteFor authorizes user at the given access level and returns the
// owning storage server endpoint. The last access time is refreshed.
func (s *Service) RouteFor(filename, user string, level AccessLevel) (Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.lookupLocked(filename)
	if m == nil {
		return Endpoint{}, ErrNotFound
	}
	if m.IsDirectory {
		return Endpoint{}, ErrIsDirectory
	}
	if !m.allows(user, level) {
		return Endpoint{}, ErrPermission
	}
	m.LastAccess = time.Now()
	return m.SS, nil
}

// RouteOwner authorizes an owner-only operation and returns the owning
// storage server endpoint.
func (s *Service) RouteOwner(filename, user string) (Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.lookupLocked(filename)
	if m == nil {
		return Endpoint{}, ErrNotFound
	}
	if m.IsDirectory {
		return Endpoint{}, ErrIsDirectory
	}
	if m.Owner != user {
		return Endpoint{}, ErrNotOwner
	}
	m.LastAccess = time.Now()
	return m.SS, nil
}

// ============================================================================
// Access control
// ============================================================================

// Grant adds (grantee, level) to the access list. Owner-only; the grantee
// must be a registered user. Granting an identical level twice is a
// no-op; granting a different level replaces it. The owner's implicit
// access is never stored.
func (s *Service) Grant(filename, requester, grantee string, level AccessLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.lookupLocked(filename)
	if m == nil {
		return ErrNotFound
	}
	if m.Owner != requester {
		return ErrNotOwner
	}
	if _, ok := s.userIndex[grantee]; !ok {
		return ErrUserNotFound
	}
	if grantee == m.Owner {
		return nil
	}
	m.Access[grantee] = level
	// A fresh grant supersedes any pending request from the same user.
	s.dropPendingLocked(m, grantee)
	s.persistFilesLocked()
	return nil
}

// Revoke removes a user from the access list. Owner-only.
func (s *Service) Revoke(filename, requester, grantee string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.lookupLocked(filename)
	if m == nil {
		return ErrNotFound
	}
	if m.Owner != requester {
		return ErrNotOwner
	}
	if _, ok := m.Access[grantee]; !ok {
		return ErrUserNotFound
	}
	delete(m.Access, grantee)
	s.persistFilesLocked()
	return nil
}

// ============================================================================
// Access requests
// ============================================================================

func (s *Service) dropPendingLocked(m *FileMetadata, user string) bool {
	for i, p := range m.Pending {
		if p == user {
			m.Pending = append(m.Pending[:i], m.Pending[i+1:]...)
			return true
		}
	}
	return false
}

// RequestAccess records a pending access request. One pending slot per
// (file, user); duplicates are no-ops. Users who already hold a grant or
// own the file cannot request.
func (s *Service) RequestAccess(filename, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.lookupLocked(filename)
	if m == nil {
		return ErrNotFound
	}
	if _, ok := s.userIndex[user]; !ok {
		return ErrUserNotFound
	}
	if m.Owner == user {
		return nil
	}
	if _, ok := m.Access[user]; ok {
		return nil
	}
	for _, p := range m.Pending {
		if p == user {
			return nil
		}
	}
	m.Pending = append(m.Pending, user)
	return nil
}

// PendingRequests lists pending requesters in arrival order. Owner-only.
func (s *Service) PendingRequests(filename, requester string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.lookupLocked(filename)
	if m == nil {
		return nil, ErrNotFound
	}
	if m.Owner != requester {
		return nil, ErrNotOwner
	}
	return append([]string(nil), m.Pending...), nil
}

// Approve promotes a pending request into an R grant. Owner-only.
func (s *Service) Approve(filename, requester, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.lookupLocked(filename)
	if m == nil {
		return ErrNotFound
	}
	if m.Owner != requester {
		return ErrNotOwner
	}
	if !s.dropPendingLocked(m, user) {
		return ErrNoRequest
	}
	m.Access[user] = AccessRead
	s.persistFilesLocked()
	return nil
}

// Reject discards a pending request. Owner-only.
func (s *Service) Reject(filename, requester, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.lookupLocked(filename)
	if m == nil {
		return ErrNotFound
	}
	if m.Owner != requester {
		return ErrNotOwner
	}
	if !s.dropPendingLocked(m, user) {
		return ErrNoRequest
	}
	return nil
}

// ============================================================================
// Annotations, info, listing
// ============================================================================

// Annotate sets the file's annotation. Owner-only.
func (s *Service) Annotate(filename, requester, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.lookupLocked(filename)
	if m == nil {
		return ErrNotFound
	}
	if m.Owner != requester {
		return ErrNotOwner
	}
	m.Annotation = text
	return nil
}

// Annotation returns the file's annotation. R-gated, like INFO.
func (s *Service) Annotation(filename, user string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.lookupLocked(filename)
	if m == nil {
		return "", ErrNotFound
	}
	if !m.allows(user, AccessRead) {
		return "", ErrPermission
	}
	return m.Annotation, nil
}

// Info returns a snapshot of a row. R-gated.
func (s *Service) Info(filename, user string) (FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.lookupLocked(filename)
	if m == nil {
		return FileInfo{}, ErrNotFound
	}
	if !m.allows(user, AccessRead) {
		return FileInfo{}, ErrPermission
	}
	return m.snapshot(), nil
}

// List returns rows in insertion order. When includeInaccessible is
// false, only rows the user can read (or owns) are returned; otherwise
// every row is returned and the caller may mark the inaccessible ones.
func (s *Service) List(user string, includeInaccessible bool) []FileInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]FileInfo, 0, len(s.files))
	for _, m := range s.files {
		if !includeInaccessible && !m.IsDirectory && !m.allows(user, AccessRead) {
			continue
		}
		out = append(out, m.snapshot())
	}
	return out
}

// Files returns a snapshot of every row. Used by the admin API.
func (s *Service) Files() []FileInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FileInfo, 0, len(s.files))
	for _, m := range s.files {
		out = append(out, m.snapshot())
	}
	return out
}

// Accessible reports whether user can read the file. Helper for VIEW;a
// marking.
func (s *Service) Accessible(filename, user string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.lookupLocked(filename)
	return m != nil && m.allows(user, AccessRead)
}

// ============================================================================
// Counts
// ============================================================================

// UpdateCounts refreshes word/char counts after a commit. Called by the
// UPDATE_META flow once the storage server has returned the bytes.
func (s *Service) UpdateCounts(filename string, words, chars int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.lookupLocked(filename)
	if m == nil {
		return ErrNotFound
	}
	m.WordCount = words
	m.CharCount = chars
	m.LastAccess = time.Now()
	return nil
}

// ============================================================================
// Folders
// ============================================================================

// CreateFolder installs a catalog-only directory row. Folders own no
// bytes and reference no storage server.
func (s *Service) CreateFolder(name, owner string) error {
	if err := protocol.ValidateName(name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	if Folder(name) != "" {
		return fmt.Errorf("%w: folders cannot nest", ErrInvalidName)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lookupLocked(name) != nil {
		return ErrExists
	}
	s.installLocked(&FileMetadata{
		Filename:    name,
		Owner:       owner,
		LastAccess:  time.Now(),
		Access:      make(map[string]AccessLevel),
		IsDirectory: true,
	})
	s.persistFilesLocked()
	return nil
}

// ViewFolder lists the files inside a folder that user can read.
func (s *Service) ViewFolder(name, user string) ([]FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.lookupLocked(name)
	if dir == nil {
		return nil, ErrNotFound
	}
	if !dir.IsDirectory {
		return nil, ErrNotDirectory
	}
	prefix := name + "/"
	var out []FileInfo
	for _, m := range s.files {
		if !strings.HasPrefix(m.Filename, prefix) {
			continue
		}
		if !m.allows(user, AccessRead) {
			continue
		}
		out = append(out, m.snapshot())
	}
	return out, nil
}

// ============================================================================
// Introspection
// ============================================================================

// Stats reports catalog sizes for health checks and tests.
type Stats struct {
	Users          int
	StorageServers int
	Files          int
	Indexed        int
	Cached         int
}

// Snapshot returns current catalog sizes.
func (s *Service) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Users:          len(s.users),
		StorageServers: len(s.sservers),
		Files:          len(s.files),
		Indexed:        s.index.len(),
		Cached:         s.cache.len(),
	}
}

// CachedKeys returns LRU keys from most to least recently used. Test
// hook.
func (s *Service) CachedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.keys()
}

// sortedGrants renders an access map deterministically for persistence.
func sortedGrants(access map[string]AccessLevel) []string {
	users := make([]string, 0, len(access))
	for u := range access {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}
