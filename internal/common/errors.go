package common

import "errors"

var (

	// repository specific errors
	ErrorNotFound = errors.New("not found")

	// service specific errors
	ErrorUnauthorized = errors.New("unauthorized")

	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// file index errors
	ErrVersionConflict  = errors.New("version conflict")
	ErrConflictingName  = errors.New("remote file name already in use")
	ErrFileDeleted      = errors.New("file deleted on server")
	ErrIncorrectRequest = errors.New("incorrect request")

	// lock errors
	ErrLockAlreadyHeld = errors.New("lock already held")
	ErrLockNotHeld     = errors.New("lock not held")

	// transfer errors
	ErrNotStaged         = errors.New("file not staged for transfer")
	ErrOperationNotFound = errors.New("operation not found")
	ErrChecksumMismatch  = errors.New("checksum mismatch")
)

// Sentinels lists the errors that travel between client and server by
// message. The transport layer uses it to restore the original error value.
var Sentinels = []error{
	ErrorNotFound,
	ErrVersionConflict,
	ErrConflictingName,
	ErrFileDeleted,
	ErrIncorrectRequest,
	ErrLockAlreadyHeld,
	ErrLockNotHeld,
	ErrNotStaged,
	ErrOperationNotFound,
	ErrChecksumMismatch,
}

// FromMessage returns the sentinel whose text equals msg, or nil.
func FromMessage(msg string) error {
	for _, e := range Sentinels {
		if e.Error() == msg {
			return e
		}
	}
	return nil
}
