package models

// StagedKind tells what a staged change does once applied.
type StagedKind string

const (
	StagedUpload   StagedKind = "upload"
	StagedDeletion StagedKind = "deletion"
	// StagedDownload marks a file prepared for an inbound transfer.
	StagedDownload StagedKind = "download"
)

// StagedChange is a change a device transferred under its lock and that
// FinishUploads has not applied yet.
type StagedChange struct {
	AccountID      string
	DeviceID       string
	UUID           string
	Kind           StagedKind
	RemoteFileName string
	MimeType       string
	AppMetaData    map[string]string
	Version        int64
	Undelete       bool
	SizeBytes      int64
	Checksum       string
	StorageKey     string
}
