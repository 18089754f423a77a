package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate indicates a unique key such as (record_id, version_number) is already taken.
	ErrDuplicate = errors.New("repository: duplicate key")
	// ErrConcurrentUpdate indicates a competing writer won: a stale revision, a violated
	// exclusivity index or a serialization failure.
	ErrConcurrentUpdate = errors.New("repository: concurrent update")
)
