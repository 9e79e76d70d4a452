package narstore

import "errors"

var (
	// ErrStoreUnavailable indicates the backend could not be opened or
	// reached. Fatal to the handle.
	ErrStoreUnavailable = errors.New("narstore: store unavailable")

	// ErrPathNotFound indicates a queried or seed path is not in the store.
	ErrPathNotFound = errors.New("narstore: path not found")

	// ErrUnsupportedHash indicates the recorded NAR hash of a path uses an
	// algorithm other than SHA-256. Never silently coerced.
	ErrUnsupportedHash = errors.New("narstore: unsupported hash algorithm")

	// ErrIO indicates a backend read failure, including mid-export.
	ErrIO = errors.New("narstore: i/o error")

	// ErrCancelled indicates the consumer aborted an in-flight export.
	ErrCancelled = errors.New("narstore: export cancelled")

	// ErrInvalidStorePath indicates a malformed store path or base name.
	ErrInvalidStorePath = errors.New("narstore: invalid store path")
)
