package errors

import "errors"

// ----------------- cache ------------------
var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// ----------------- storage ------------------
var (
	ErrNotFound = errors.New("entity not found")
)

// ----------------- sync engine ------------------
var (
	ErrMissingPostingNumber = errors.New("order payload has no posting number")
	ErrNoCredentials        = errors.New("no active credentials for company")
	ErrSyncInProgress       = errors.New("sync already in progress for company")
)
