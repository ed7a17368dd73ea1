package models

import (
	"time"

	"github.com/dmitrijs2005/syncserver/internal/common"
)

// ServerFile is one entry of the server file index.
type ServerFile struct {
	UUID           string
	RemoteFileName string
	MimeType       string
	AppMetaData    map[string]string
	Deleted        bool
	Version        int64
	LastModified   time.Time
	SizeBytes      int64
	Checksum       string
}

// Attributes converts the server entry into host-facing attributes.
func (f ServerFile) Attributes() SyncAttributes {
	deleted := NotDeleted
	if f.Deleted {
		deleted = DeletedConfirmed
	}
	return SyncAttributes{
		UUID:           f.UUID,
		RemoteFileName: f.RemoteFileName,
		MimeType:       f.MimeType,
		AppMetaData:    f.AppMetaData,
		Deleted:        deleted,
		Version:        Int64(f.Version),
		SizeBytes:      f.SizeBytes,
	}
}

// FileIndex is the authoritative server view returned by GetFileIndex.
type FileIndex struct {
	Files        []ServerFile
	IndexVersion int64
	// StagedUploads and StagedDeletions list uuids this device already
	// transferred under its current lock.
	StagedUploads   []string
	StagedDeletions []string
}

func (i *FileIndex) ByUUID() map[string]ServerFile {
	m := make(map[string]ServerFile, len(i.Files))
	for _, f := range i.Files {
		m[f.UUID] = f
	}
	return m
}

type UploadRequest struct {
	Attributes SyncAttributes
	Version    int64
	Undelete   bool
	Checksum   string
	Data       []byte
}

type DeleteRequest struct {
	UUID    string
	Version int64
}

type OperationStatusCode int

func (c OperationStatusCode) Finished() bool {
	return c == common.OperationStatusSuccessfulCompletion || c.Failed()
}

func (c OperationStatusCode) Failed() bool {
	switch c {
	case common.OperationStatusFailedBeforeTransfer,
		common.OperationStatusFailedDuringTransfer,
		common.OperationStatusFailedAfterTransfer:
		return true
	}
	return false
}

type OperationStatus struct {
	Code  OperationStatusCode
	Count int
	Error string
}
