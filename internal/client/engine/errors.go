package engine

import "errors"

// Host API errors. They are returned synchronously from Session methods or,
// for ErrConflictWithServerState, delivered with the mode change.
var (
	ErrAlreadyDeleted          = errors.New("file already deleted")
	ErrUnknownFile             = errors.New("unknown file")
	ErrConflictingAttributes   = errors.New("conflicting file attributes")
	ErrConflictWithServerState = errors.New("conflict with server state")
	ErrResetAlreadyInProgress  = errors.New("reset already in progress")
	ErrNotInErrorMode          = errors.New("not in an error mode")
	ErrConflictAlreadyResolved = errors.New("conflict already resolved")
	ErrInvalidResolution       = errors.New("invalid conflict resolution")
	ErrRecoveryFailed          = errors.New("recovery failed")
	ErrInvalidAttributes       = errors.New("uuid and remote file name are required")
	ErrClosed                  = errors.New("session closed")
)

// Fault injection errors.
var (
	ErrInjectedFault  = errors.New("injected transient fault")
	ErrSimulatedCrash = errors.New("simulated crash")
)
