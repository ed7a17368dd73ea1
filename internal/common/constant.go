// Package common contains shared constants and sentinel errors used across
// the sync client and the reference server.
package common

const (
	// AccessTokenHeaderName is the gRPC metadata key used to carry the
	// account access token on outbound requests.
	AccessTokenHeaderName = "access_token"

	// DeviceIDHeaderName identifies the calling device. The server lock is
	// held per account by exactly one device id.
	DeviceIDHeaderName = "device_id"
)

// Server operation status codes reported by CheckOperationStatus.
const (
	OperationStatusNotStarted           = 200
	OperationStatusInProgress           = 201
	OperationStatusFailedBeforeTransfer = 202
	OperationStatusFailedDuringTransfer = 203
	OperationStatusFailedAfterTransfer  = 204
	OperationStatusSuccessfulCompletion = 210
)
