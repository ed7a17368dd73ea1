package metadata

import (
	"context"
	"fmt"
	"strconv"
)

// GetString reads key as a string; an absent key yields "".
func GetString(ctx context.Context, r Repository, key string) (string, error) {
	v, _, err := r.Get(ctx, key)
	return v, err
}

func SetString(ctx context.Context, r Repository, key, value string) error {
	return r.Set(ctx, key, value)
}

// GetInt64 reads key as a decimal integer; an absent key yields 0.
func GetInt64(ctx context.Context, r Repository, key string) (int64, error) {
	v, ok, err := r.Get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("state %q is not an integer: %w", key, err)
	}
	return n, nil
}

func SetInt64(ctx context.Context, r Repository, key string, value int64) error {
	return r.Set(ctx, key, strconv.FormatInt(value, 10))
}

// GetBool reports whether key is present.
func GetBool(ctx context.Context, r Repository, key string) (bool, error) {
	_, ok, err := r.Get(ctx, key)
	return ok, err
}

// SetBool stores true as "1" and deletes the key for false.
func SetBool(ctx context.Context, r Repository, key string, value bool) error {
	if !value {
		return r.Delete(ctx, key)
	}
	return r.Set(ctx, key, "1")
}
