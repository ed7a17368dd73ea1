package engine

import (
	"fmt"

	"github.com/dmitrijs2005/syncserver/internal/client/models"
)

// Event is one notification of the closed set delivered through
// Delegate.SyncServerEventOccurred.
type Event interface {
	isEvent()
	fmt.Stringer
}

// Download is a file the engine materialized locally.
type Download struct {
	Path       string
	Attributes models.SyncAttributes
}

type SingleUploadComplete struct {
	UUID string
}

type DeletionsSent struct {
	UUIDs []string
}

// FrameworkUploadMetaDataUpdated follows a confirmed outbound batch once the
// local records carry the new versions.
type FrameworkUploadMetaDataUpdated struct{}

type AllUploadsComplete struct {
	NumberOperations int
}

type InboundTransferComplete struct {
	NumberOperations int
}

type SingleDownloadComplete struct {
	Download Download
}

type DownloadsFinished struct {
	NumberOperations int
}

type NoFilesToDownload struct{}

type NoFilesToUpload struct{}

// Recovery reports one retry (or a resumed pass after relaunch). How many
// are emitted per failure is not fixed.
type Recovery struct {
	Step string
}

type LockAlreadyHeld struct{}

func (SingleUploadComplete) isEvent()           {}
func (DeletionsSent) isEvent()                  {}
func (FrameworkUploadMetaDataUpdated) isEvent() {}
func (AllUploadsComplete) isEvent()             {}
func (InboundTransferComplete) isEvent()        {}
func (SingleDownloadComplete) isEvent()         {}
func (DownloadsFinished) isEvent()              {}
func (NoFilesToDownload) isEvent()              {}
func (NoFilesToUpload) isEvent()                {}
func (Recovery) isEvent()                       {}
func (LockAlreadyHeld) isEvent()                {}

func (e SingleUploadComplete) String() string { return "single-upload-complete " + e.UUID }
func (e DeletionsSent) String() string        { return fmt.Sprintf("deletions-sent %v", e.UUIDs) }
func (FrameworkUploadMetaDataUpdated) String() string {
	return "framework-upload-metadata-updated"
}
func (e AllUploadsComplete) String() string {
	return fmt.Sprintf("all-uploads-complete %d", e.NumberOperations)
}
func (e InboundTransferComplete) String() string {
	return fmt.Sprintf("inbound-transfer-complete %d", e.NumberOperations)
}
func (e SingleDownloadComplete) String() string {
	return "single-download-complete " + e.Download.Attributes.UUID
}
func (e DownloadsFinished) String() string {
	return fmt.Sprintf("downloads-finished %d", e.NumberOperations)
}
func (NoFilesToDownload) String() string { return "no-files-to-download" }
func (NoFilesToUpload) String() string   { return "no-files-to-upload" }
func (e Recovery) String() string        { return "recovery " + e.Step }
func (LockAlreadyHeld) String() string   { return "lock-already-held" }
