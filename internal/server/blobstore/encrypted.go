package blobstore

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/syncserver/internal/common"
	"github.com/dmitrijs2005/syncserver/internal/cryptox"
)

// Encrypted seals blobs with AES-GCM before they reach the wrapped store.
type Encrypted struct {
	next Store
	key  []byte
}

// NewEncrypted derives the blob key from passphrase and salt.
func NewEncrypted(next Store, passphrase, salt string) *Encrypted {
	pw := []byte(passphrase)
	defer common.WipeByteArray(pw)
	return &Encrypted{next: next, key: cryptox.DeriveKey(pw, []byte(salt))}
}

func (e *Encrypted) Put(ctx context.Context, key string, data []byte) error {
	sealed, err := cryptox.Seal(data, e.key)
	if err != nil {
		return fmt.Errorf("seal blob: %w", err)
	}
	return e.next.Put(ctx, key, sealed)
}

func (e *Encrypted) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := e.next.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	data, err := cryptox.Open(sealed, e.key)
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", key, err)
	}
	return data, nil
}

func (e *Encrypted) Delete(ctx context.Context, key string) error {
	return e.next.Delete(ctx, key)
}
