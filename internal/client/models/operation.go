package models

import "time"

type OperationKind string

const (
	OperationUpload OperationKind = "upload"
	OperationDelete OperationKind = "delete"
)

// PayloadSource tells where the bytes of an upload come from.
type PayloadSource string

const (
	SourceNone PayloadSource = ""
	// SourceImmutable is a host-owned file that must not be modified.
	SourceImmutable PayloadSource = "immutable"
	// SourceTemporary is removed by the engine once its upload is confirmed.
	SourceTemporary PayloadSource = "temporary"
	// SourceData keeps the bytes inside the queue itself.
	SourceData PayloadSource = "data"
)

// OperationStage is the position of a queued operation in the pipeline:
// preparing (not yet committed) -> committed (waiting for its turn) -> uploading.
type OperationStage string

const (
	StagePreparing OperationStage = "preparing"
	StageCommitted OperationStage = "committed"
	StageUploading OperationStage = "uploading"
)

// PendingOperation is one queued upload or deletion.
type PendingOperation struct {
	ID         int64
	BatchID    int64
	Stage      OperationStage
	Kind       OperationKind
	UUID       string
	Source     PayloadSource
	Path       string
	Data       []byte
	Attributes SyncAttributes
	// Undelete allows an upload over a file deleted on the server.
	Undelete bool
	// TargetVersion is assigned at index check time.
	TargetVersion *int64
	// Transferred is set once the server staged the upload or deletion.
	Transferred bool
	CreatedAt   time.Time
}
