// Package models defines server-side data models persisted in the database.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// File is one entry of an account's file index. The content itself is kept
// in the blob store under StorageKey.
type File struct {
	AccountID      string
	UUID           string
	RemoteFileName string
	MimeType       string
	AppMetaData    map[string]string
	Deleted        bool
	// Version is 0 after the first upload and grows by one per update.
	// A deletion keeps the version of the last upload.
	Version    int64
	SizeBytes  int64
	Checksum   string
	StorageKey string
	UpdatedAt  time.Time
}

// Lock is the per-account sync lock held by one device.
type Lock struct {
	AccountID string
	DeviceID  string
	ExpiresAt time.Time
}

func (l *Lock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// EncodeMetaData serializes app metadata into the text column form.
func EncodeMetaData(md map[string]string) (string, error) {
	if len(md) == 0 {
		return "", nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("failed to encode app metadata: %w", err)
	}
	return string(b), nil
}

func DecodeMetaData(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	md := map[string]string{}
	if err := json.Unmarshal([]byte(s), &md); err != nil {
		return nil, fmt.Errorf("failed to decode app metadata: %w", err)
	}
	return md, nil
}
