// Package client contains the transport and storage bootstrap of the sync
// client.
//
// # Overview
//
//  1. Client is the contract of the sync server: lock/unlock, file index,
//     staged uploads and deletions, finishUploads with its operation id,
//     inbound transfer and download, cleanup.
//  2. GRPCClient implements it over gRPC. An interceptor attaches the access
//     token and the device id to every call, and status codes are mapped back
//     to sentinel errors (ErrUnavailable, ErrUnauthorized, ErrServer and the
//     shared ones from internal/common).
//  3. InitDatabase/NewRepositories open the local SQLite store and bind the
//     repositories, optionally to a transaction via Repositories.WithTx.
package client
