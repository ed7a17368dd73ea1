package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/syncserver/internal/common"
	pb "github.com/dmitrijs2005/syncserver/internal/proto"
	"github.com/dmitrijs2005/syncserver/internal/server/models"
	"github.com/dmitrijs2005/syncserver/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// statusCodes maps sentinels to gRPC codes. The status message is the bare
// sentinel text so the client can restore the error value.
var statusCodes = []struct {
	err  error
	code codes.Code
}{
	{common.ErrLockAlreadyHeld, codes.Aborted},
	{common.ErrLockNotHeld, codes.FailedPrecondition},
	{common.ErrVersionConflict, codes.FailedPrecondition},
	{common.ErrConflictingName, codes.FailedPrecondition},
	{common.ErrFileDeleted, codes.FailedPrecondition},
	{common.ErrIncorrectRequest, codes.InvalidArgument},
	{common.ErrChecksumMismatch, codes.DataLoss},
	{common.ErrNotStaged, codes.NotFound},
	{common.ErrOperationNotFound, codes.NotFound},
	{common.ErrorNotFound, codes.NotFound},
	{common.ErrorUnauthorized, codes.Unauthenticated},
	{context.Canceled, codes.Canceled},
	{context.DeadlineExceeded, codes.DeadlineExceeded},
}

func (s *GRPCServer) toStatus(ctx context.Context, method string, err error) error {
	for _, m := range statusCodes {
		if errors.Is(err, m.err) {
			s.logger.Debug(ctx, "request rejected", "method", method, "error", err)
			return status.Error(m.code, m.err.Error())
		}
	}
	s.logger.Error(ctx, "request failed", "method", method, "error", err)
	return status.Error(codes.Internal, "internal error")
}

func toEntry(f *models.File) pb.FileIndexEntry {
	return pb.FileIndexEntry{
		FileAttributes: pb.FileAttributes{
			UUID:          f.UUID,
			CloudFileName: f.RemoteFileName,
			MimeType:      f.MimeType,
			AppMetaData:   f.AppMetaData,
		},
		Deleted:       f.Deleted,
		FileVersion:   f.Version,
		LastModified:  f.UpdatedAt.Unix(),
		FileSizeBytes: f.SizeBytes,
		Checksum:      f.Checksum,
	}
}

func (s *GRPCServer) Ping(ctx context.Context, req *pb.Empty) (*pb.Empty, error) {
	c, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.sync.Ping(ctx, c); err != nil {
		return nil, s.toStatus(ctx, pb.MethodPing, err)
	}
	return &pb.Empty{}, nil
}

func (s *GRPCServer) Lock(ctx context.Context, req *pb.Empty) (*pb.Empty, error) {
	c, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.sync.Lock(ctx, c); err != nil {
		return nil, s.toStatus(ctx, pb.MethodLock, err)
	}
	return &pb.Empty{}, nil
}

func (s *GRPCServer) Unlock(ctx context.Context, req *pb.Empty) (*pb.Empty, error) {
	c, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.sync.Unlock(ctx, c); err != nil {
		return nil, s.toStatus(ctx, pb.MethodUnlock, err)
	}
	return &pb.Empty{}, nil
}

func (s *GRPCServer) GetFileIndex(ctx context.Context, req *pb.Empty) (*pb.FileIndexResponse, error) {
	c, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	idx, err := s.sync.GetFileIndex(ctx, c)
	if err != nil {
		return nil, s.toStatus(ctx, pb.MethodGetFileIndex, err)
	}

	resp := &pb.FileIndexResponse{
		Files:           make([]pb.FileIndexEntry, 0, len(idx.Files)),
		IndexVersion:    idx.IndexVersion,
		StagedUploads:   idx.StagedUploads,
		StagedDeletions: idx.StagedDeletions,
	}
	for _, f := range idx.Files {
		resp.Files = append(resp.Files, toEntry(f))
	}
	return resp, nil
}

func (s *GRPCServer) UploadFile(ctx context.Context, req *pb.UploadFileRequest) (*pb.Empty, error) {
	c, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	err = s.sync.UploadFile(ctx, c, &services.UploadRequest{
		UUID:           req.Attributes.UUID,
		RemoteFileName: req.Attributes.CloudFileName,
		MimeType:       req.Attributes.MimeType,
		AppMetaData:    req.Attributes.AppMetaData,
		Version:        req.FileVersion,
		Undelete:       req.Undelete,
		Checksum:       req.Checksum,
		Data:           req.Data,
	})
	if err != nil {
		return nil, s.toStatus(ctx, pb.MethodUploadFile, err)
	}
	return &pb.Empty{}, nil
}

func (s *GRPCServer) DeleteFiles(ctx context.Context, req *pb.DeleteFilesRequest) (*pb.Empty, error) {
	c, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	reqs := make([]services.DeleteRequest, 0, len(req.Files))
	for _, f := range req.Files {
		reqs = append(reqs, services.DeleteRequest{UUID: f.UUID, Version: f.FileVersion})
	}
	if err := s.sync.DeleteFiles(ctx, c, reqs); err != nil {
		return nil, s.toStatus(ctx, pb.MethodDeleteFiles, err)
	}
	return &pb.Empty{}, nil
}

func (s *GRPCServer) FinishUploads(ctx context.Context, req *pb.FinishUploadsRequest) (*pb.OperationIDResponse, error) {
	c, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	id, err := s.sync.FinishUploads(ctx, c, req.ExpectedIndexVersion)
	if err != nil {
		return nil, s.toStatus(ctx, pb.MethodFinishUploads, err)
	}
	return &pb.OperationIDResponse{OperationID: id}, nil
}

func (s *GRPCServer) CheckOperationStatus(ctx context.Context, req *pb.OperationIDRequest) (*pb.OperationStatusResponse, error) {
	c, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	op, err := s.sync.CheckOperationStatus(ctx, c, req.OperationID)
	if err != nil {
		return nil, s.toStatus(ctx, pb.MethodCheckOperationStatus, err)
	}
	return &pb.OperationStatusResponse{StatusCode: op.Status, Count: op.Count, Error: op.Error}, nil
}

func (s *GRPCServer) RemoveOperationID(ctx context.Context, req *pb.OperationIDRequest) (*pb.Empty, error) {
	c, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.sync.RemoveOperationID(ctx, c, req.OperationID); err != nil {
		return nil, s.toStatus(ctx, pb.MethodRemoveOperationID, err)
	}
	return &pb.Empty{}, nil
}

func (s *GRPCServer) SetupInboundTransfer(ctx context.Context, req *pb.InboundTransferRequest) (*pb.CountResponse, error) {
	c, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	n, err := s.sync.SetupInboundTransfer(ctx, c, req.UUIDs)
	if err != nil {
		return nil, s.toStatus(ctx, pb.MethodSetupInboundTransfer, err)
	}
	return &pb.CountResponse{Count: n}, nil
}

func (s *GRPCServer) DownloadFile(ctx context.Context, req *pb.DownloadFileRequest) (*pb.DownloadFileResponse, error) {
	c, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	f, data, err := s.sync.DownloadFile(ctx, c, req.UUID)
	if err != nil {
		return nil, s.toStatus(ctx, pb.MethodDownloadFile, err)
	}
	return &pb.DownloadFileResponse{Entry: toEntry(f), Data: data}, nil
}

func (s *GRPCServer) Cleanup(ctx context.Context, req *pb.Empty) (*pb.Empty, error) {
	c, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.sync.Cleanup(ctx, c); err != nil {
		return nil, s.toStatus(ctx, pb.MethodCleanup, err)
	}
	return &pb.Empty{}, nil
}
