package models

type DownloadKind string

const (
	DownloadFile     DownloadKind = "file"
	DownloadDeletion DownloadKind = "deletion"
)

type DownloadStage string

const (
	DownloadPlanned      DownloadStage = "planned"
	DownloadMaterialized DownloadStage = "materialized"
)

// ConflictState records the host decision for a download that collides with
// a queued local operation.
type ConflictState string

const (
	ConflictNone    ConflictState = ""
	ConflictPending ConflictState = "pending"
	ConflictKeep    ConflictState = "keep"
	ConflictDelete  ConflictState = "delete"
)

// DownloadOperation is one server-initiated change being applied locally.
type DownloadOperation struct {
	ID        int64
	Kind      DownloadKind
	UUID      string
	Server    ServerFile
	Stage     DownloadStage
	LocalPath string
	Conflict  ConflictState
	// ConflictingOperation is the kind of local operation in conflict.
	ConflictingOperation OperationKind
}
