// Package logging is the structured logger shared by the sync client and the
// reference server. Only the slog-backed implementation exists.
package logging

import "context"

// Logger takes key/value pairs after msg:
//
//	log.Info(ctx, "lock acquired", "device", deviceID, "attempt", n)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger carrying args on every record.
	With(args ...any) Logger
}

var _ Logger = (*SlogLogger)(nil)
