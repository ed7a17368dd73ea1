// Package proto describes the wire contract between the sync client and the
// server: request/response messages and the SyncService gRPC descriptor.
//
// Messages are plain Go structs carried over gRPC as google.protobuf.Struct
// values (see Encode and Decode), so no protoc step is needed to build.
package proto

type Empty struct{}

// FileAttributes is the client-supplied part of a file index entry.
type FileAttributes struct {
	UUID          string            `json:"fileId"`
	CloudFileName string            `json:"cloudFileName"`
	MimeType      string            `json:"mimeType"`
	AppMetaData   map[string]string `json:"appMetaData,omitempty"`
}

type FileIndexEntry struct {
	FileAttributes
	Deleted       bool   `json:"deleted"`
	FileVersion   int64  `json:"fileVersion"`
	LastModified  int64  `json:"lastModified"`
	FileSizeBytes int64  `json:"fileSizeBytes"`
	Checksum      string `json:"checksum"`
}

type FileIndexResponse struct {
	Files           []FileIndexEntry `json:"files"`
	IndexVersion    int64            `json:"indexVersion"`
	StagedUploads   []string         `json:"stagedUploads,omitempty"`
	StagedDeletions []string         `json:"stagedDeletions,omitempty"`
}

type UploadFileRequest struct {
	Attributes  FileAttributes `json:"attributes"`
	FileVersion int64          `json:"fileVersion"`
	Undelete    bool           `json:"undelete,omitempty"`
	Checksum    string         `json:"checksum"`
	Data        []byte         `json:"data"`
}

type DeleteFile struct {
	UUID        string `json:"fileId"`
	FileVersion int64  `json:"fileVersion"`
}

type DeleteFilesRequest struct {
	Files []DeleteFile `json:"files"`
}

type FinishUploadsRequest struct {
	ExpectedIndexVersion int64 `json:"expectedIndexVersion"`
}

type OperationIDRequest struct {
	OperationID string `json:"operationId"`
}

type OperationIDResponse struct {
	OperationID string `json:"operationId"`
}

type OperationStatusResponse struct {
	StatusCode int    `json:"statusCode"`
	Count      int    `json:"count"`
	Error      string `json:"error,omitempty"`
}

type InboundTransferRequest struct {
	UUIDs []string `json:"fileIds"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type DownloadFileRequest struct {
	UUID string `json:"fileId"`
}

type DownloadFileResponse struct {
	Entry FileIndexEntry `json:"entry"`
	Data  []byte         `json:"data"`
}
