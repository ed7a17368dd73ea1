package client

import "errors"

// Transport failures after gRPC status translation. Sentinels the server
// reports by message are restored as the common.Err* values instead.
var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrServer       = errors.New("server error")
)
