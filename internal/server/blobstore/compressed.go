package blobstore

import (
	"context"

	"github.com/klauspost/compress/zstd"
)

// Compressed stores blobs zstd-compressed in the wrapped store.
type Compressed struct {
	next Store
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

func NewCompressed(next Store) (*Compressed, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Compressed{next: next, enc: enc, dec: dec}, nil
}

func (c *Compressed) Put(ctx context.Context, key string, data []byte) error {
	return c.next.Put(ctx, key, c.enc.EncodeAll(data, nil))
}

func (c *Compressed) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.next.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return c.dec.DecodeAll(b, nil)
}

func (c *Compressed) Delete(ctx context.Context, key string) error {
	return c.next.Delete(ctx, key)
}
