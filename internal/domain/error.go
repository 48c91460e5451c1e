package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidTransition  = errors.New("illegal subscription status transition")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid database execution context")

	// Access and scheduling
	ErrNotConfigured   = errors.New("external system is not configured")
	ErrIdentityMissing = errors.New("user has no linked identity for this system")
	ErrPassInProgress  = errors.New("reconciler pass already running")
	ErrProviderFailed  = errors.New("external system call failed")
)
