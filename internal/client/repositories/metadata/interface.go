// Package metadata is a small key/value store in the client database. The
// engine keeps its recovery flags there: persisted sync mode, lock flag,
// outbound operation id and the finishing-uploads marker.
package metadata

import (
	"context"
)

type Repository interface {
	// Get reports ok=false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	// Delete removes every listed key. Absent keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	Snapshot(ctx context.Context) (map[string]string, error)
}
