package catalog

import "errors"

// Sentinel errors returned by the catalog. The name server session maps
// these onto wire error codes; keeping them as sentinels lets callers use
// errors.Is without knowing the wire taxonomy.
var (
	// ErrNotFound indicates no catalog row exists for the filename.
	ErrNotFound = errors.New("file not found")

	// ErrExists indicates a catalog row already exists for the filename.
	ErrExists = errors.New("file already exists")

	// ErrUserNotFound indicates the username is not registered.
	ErrUserNotFound = errors.New("user not found")

	// ErrNotOwner indicates an owner-only operation was attempted by a
	// non-owner.
	ErrNotOwner = errors.New("not the owner")

	// ErrPermission indicates the caller lacks the required access level.
	ErrPermission = errors.New("permission denied")

	// ErrNoStorage indicates no storage server is registered.
	ErrNoStorage = errors.New("no storage server available")

	// ErrInvalidName indicates a name that cannot travel on the wire or
	// would escape a storage root.
	ErrInvalidName = errors.New("invalid name")

	// ErrNoRequest indicates there is no pending access request to
	// approve or reject for the given user.
	ErrNoRequest = errors.New("no pending request")

	// ErrIsDirectory indicates a byte-level operation on a folder row.
	ErrIsDirectory = errors.New("is a directory")

	// ErrNotDirectory indicates a folder operation on a regular file.
	ErrNotDirectory = errors.New("not a directory")
)
