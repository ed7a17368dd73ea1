package client

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/syncserver/internal/client/models"
	"github.com/dmitrijs2005/syncserver/internal/common"
	pb "github.com/dmitrijs2005/syncserver/internal/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// MaxMessageSize bounds a single upload or download payload on the wire.
const MaxMessageSize = 64 << 20

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      pb.SyncServiceClient
	accessToken string
	deviceID    string
}

func withCredentials(ctx context.Context, token, deviceID string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)
	md.Set(common.DeviceIDHeaderName, deviceID)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) credentialsInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	ctx = withCredentials(ctx, s.accessToken, s.deviceID)
	return invoker(ctx, method, req, reply, cc, opts...)
}

func NewGRPCClient(endpointURL, accessToken, deviceID string) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, accessToken: accessToken, deviceID: deviceID}
	err := c.InitGRPCClient()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient() error {
	conn, err := grpc.NewClient(s.endpointURL,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.credentialsInterceptor),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(MaxMessageSize),
			grpc.MaxCallSendMsgSize(MaxMessageSize),
		),
	)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = pb.NewSyncServiceClient(conn)
	return nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.client.Ping(ctx, &pb.Empty{})
	return s.mapError(err)
}

func (s *GRPCClient) Lock(ctx context.Context) error {
	_, err := s.client.Lock(ctx, &pb.Empty{})
	return s.mapError(err)
}

func (s *GRPCClient) Unlock(ctx context.Context) error {
	_, err := s.client.Unlock(ctx, &pb.Empty{})
	return s.mapError(err)
}

func (s *GRPCClient) GetFileIndex(ctx context.Context) (*models.FileIndex, error) {
	resp, err := s.client.GetFileIndex(ctx, &pb.Empty{})
	if err != nil {
		return nil, s.mapError(err)
	}

	idx := &models.FileIndex{
		Files:           make([]models.ServerFile, 0, len(resp.Files)),
		IndexVersion:    resp.IndexVersion,
		StagedUploads:   resp.StagedUploads,
		StagedDeletions: resp.StagedDeletions,
	}
	for _, e := range resp.Files {
		idx.Files = append(idx.Files, toServerFile(e))
	}
	return idx, nil
}

func (s *GRPCClient) UploadFile(ctx context.Context, req *models.UploadRequest) error {
	in := &pb.UploadFileRequest{
		Attributes:  toAttributes(req.Attributes),
		FileVersion: req.Version,
		Undelete:    req.Undelete,
		Checksum:    req.Checksum,
		Data:        req.Data,
	}
	_, err := s.client.UploadFile(ctx, in)
	return s.mapError(err)
}

func (s *GRPCClient) DeleteFiles(ctx context.Context, files []models.DeleteRequest) error {
	in := &pb.DeleteFilesRequest{Files: make([]pb.DeleteFile, 0, len(files))}
	for _, f := range files {
		in.Files = append(in.Files, pb.DeleteFile{UUID: f.UUID, FileVersion: f.Version})
	}
	_, err := s.client.DeleteFiles(ctx, in)
	return s.mapError(err)
}

func (s *GRPCClient) FinishUploads(ctx context.Context, expectedIndexVersion int64) (string, error) {
	resp, err := s.client.FinishUploads(ctx, &pb.FinishUploadsRequest{ExpectedIndexVersion: expectedIndexVersion})
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.OperationID, nil
}

func (s *GRPCClient) CheckOperationStatus(ctx context.Context, operationID string) (*models.OperationStatus, error) {
	resp, err := s.client.CheckOperationStatus(ctx, &pb.OperationIDRequest{OperationID: operationID})
	if err != nil {
		return nil, s.mapError(err)
	}
	return &models.OperationStatus{
		Code:  models.OperationStatusCode(resp.StatusCode),
		Count: resp.Count,
		Error: resp.Error,
	}, nil
}

func (s *GRPCClient) RemoveOperationID(ctx context.Context, operationID string) error {
	_, err := s.client.RemoveOperationID(ctx, &pb.OperationIDRequest{OperationID: operationID})
	return s.mapError(err)
}

func (s *GRPCClient) SetupInboundTransfer(ctx context.Context, uuids []string) (int, error) {
	resp, err := s.client.SetupInboundTransfer(ctx, &pb.InboundTransferRequest{UUIDs: uuids})
	if err != nil {
		return 0, s.mapError(err)
	}
	return resp.Count, nil
}

func (s *GRPCClient) DownloadFile(ctx context.Context, uuid string) (*models.ServerFile, []byte, error) {
	resp, err := s.client.DownloadFile(ctx, &pb.DownloadFileRequest{UUID: uuid})
	if err != nil {
		return nil, nil, s.mapError(err)
	}
	f := toServerFile(resp.Entry)
	return &f, resp.Data, nil
}

func (s *GRPCClient) Cleanup(ctx context.Context) error {
	_, err := s.client.Cleanup(ctx, &pb.Empty{})
	return s.mapError(err)
}

func toAttributes(a models.SyncAttributes) pb.FileAttributes {
	return pb.FileAttributes{
		UUID:          a.UUID,
		CloudFileName: a.RemoteFileName,
		MimeType:      a.MimeType,
		AppMetaData:   a.AppMetaData,
	}
}

func toServerFile(e pb.FileIndexEntry) models.ServerFile {
	return models.ServerFile{
		UUID:           e.UUID,
		RemoteFileName: e.CloudFileName,
		MimeType:       e.MimeType,
		AppMetaData:    e.AppMetaData,
		Deleted:        e.Deleted,
		Version:        e.FileVersion,
		LastModified:   time.Unix(e.LastModified, 0).UTC(),
		SizeBytes:      e.FileSizeBytes,
		Checksum:       e.Checksum,
	}
}

// mapError turns a gRPC status into a sentinel error. Aborted is how the
// server reports a lock held by another device; other codes carry the
// sentinel text as the status message.
func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("rpc error: %w", err)
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return ErrUnavailable
	case codes.Aborted:
		return common.ErrLockAlreadyHeld
	}
	if e := common.FromMessage(st.Message()); e != nil {
		return e
	}
	return fmt.Errorf("%w: %s", ErrServer, st.Message())
}
