// Package models defines client-side data models of the sync engine: local
// file-status records, queued operations, in-flight downloads and the shapes
// exchanged with the server.
package models

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// DeletedState is the tri-state deletion flag of a file.
type DeletedState int

const (
	NotDeleted DeletedState = iota
	// DeletedPending means a deletion is queued locally but not yet confirmed.
	DeletedPending
	// DeletedConfirmed means the server has the file marked deleted.
	DeletedConfirmed
)

func (d DeletedState) String() string {
	switch d {
	case NotDeleted:
		return "not-deleted"
	case DeletedPending:
		return "deleted-pending"
	case DeletedConfirmed:
		return "deleted"
	default:
		return "unknown"
	}
}

// SyncAttributes describes one file as the host sees it.
type SyncAttributes struct {
	// UUID is the identity key; immutable once assigned.
	UUID string
	// RemoteFileName is unique among non-deleted files of the account.
	RemoteFileName string
	MimeType       string
	AppMetaData    map[string]string
	Deleted        DeletedState
	// Version is the server-assigned version, nil until the first upload is confirmed.
	Version   *int64
	SizeBytes int64
}

// IsDeleted reports whether the file is deleted or has a deletion pending.
func (a SyncAttributes) IsDeleted() bool {
	return a.Deleted != NotDeleted
}

// FileRecord is the local file-status record kept per uuid.
type FileRecord struct {
	SyncAttributes
	Checksum  string
	LocalPath string
	UpdatedAt time.Time
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}

var ErrIncorrectMetadata = errors.New("metadata item must be name=value")

// ParseAppMetaData converts "name=value" items into an app metadata map.
func ParseAppMetaData(items []string) (map[string]string, error) {
	if len(items) == 0 {
		return nil, nil
	}
	data := make(map[string]string, len(items))
	for _, item := range items {
		parts := strings.SplitN(item, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, ErrIncorrectMetadata
		}
		data[parts[0]] = parts[1]
	}
	return data, nil
}

// EncodeAppMetaData serializes app metadata for storage; nil becomes "".
func EncodeAppMetaData(md map[string]string) (string, error) {
	if len(md) == 0 {
		return "", nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeAppMetaData reverses EncodeAppMetaData.
func DecodeAppMetaData(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	md := map[string]string{}
	if err := json.Unmarshal([]byte(s), &md); err != nil {
		return nil, err
	}
	return md, nil
}

// Now returns the current time in UTC truncated to seconds, the precision
// records are stored with.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
