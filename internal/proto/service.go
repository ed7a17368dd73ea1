package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "syncserver.SyncService"

const (
	MethodPing                 = "Ping"
	MethodLock                 = "Lock"
	MethodUnlock               = "Unlock"
	MethodGetFileIndex         = "GetFileIndex"
	MethodUploadFile           = "UploadFile"
	MethodDeleteFiles          = "DeleteFiles"
	MethodFinishUploads        = "FinishUploads"
	MethodCheckOperationStatus = "CheckOperationStatus"
	MethodRemoveOperationID    = "RemoveOperationId"
	MethodSetupInboundTransfer = "SetupInboundTransfer"
	MethodDownloadFile         = "DownloadFile"
	MethodCleanup              = "Cleanup"
)

// FullMethod returns the gRPC method path, e.g. /syncserver.SyncService/Lock.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// SyncServiceClient is the client API for SyncService.
type SyncServiceClient interface {
	Ping(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Empty, error)
	Lock(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Empty, error)
	Unlock(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Empty, error)
	GetFileIndex(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*FileIndexResponse, error)
	UploadFile(ctx context.Context, in *UploadFileRequest, opts ...grpc.CallOption) (*Empty, error)
	DeleteFiles(ctx context.Context, in *DeleteFilesRequest, opts ...grpc.CallOption) (*Empty, error)
	FinishUploads(ctx context.Context, in *FinishUploadsRequest, opts ...grpc.CallOption) (*OperationIDResponse, error)
	CheckOperationStatus(ctx context.Context, in *OperationIDRequest, opts ...grpc.CallOption) (*OperationStatusResponse, error)
	RemoveOperationID(ctx context.Context, in *OperationIDRequest, opts ...grpc.CallOption) (*Empty, error)
	SetupInboundTransfer(ctx context.Context, in *InboundTransferRequest, opts ...grpc.CallOption) (*CountResponse, error)
	DownloadFile(ctx context.Context, in *DownloadFileRequest, opts ...grpc.CallOption) (*DownloadFileResponse, error)
	Cleanup(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Empty, error)
}

type syncServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSyncServiceClient(cc grpc.ClientConnInterface) SyncServiceClient {
	return &syncServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts ...grpc.CallOption) (*Resp, error) {
	req, err := Encode(in)
	if err != nil {
		return nil, err
	}

	reply := new(structpb.Struct)
	if err := cc.Invoke(ctx, FullMethod(method), req, reply, opts...); err != nil {
		return nil, err
	}

	out := new(Resp)
	if err := Decode(reply, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *syncServiceClient) Ping(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodPing, in, opts...)
}

func (c *syncServiceClient) Lock(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodLock, in, opts...)
}

func (c *syncServiceClient) Unlock(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodUnlock, in, opts...)
}

func (c *syncServiceClient) GetFileIndex(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*FileIndexResponse, error) {
	return invoke[FileIndexResponse](ctx, c.cc, MethodGetFileIndex, in, opts...)
}

func (c *syncServiceClient) UploadFile(ctx context.Context, in *UploadFileRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodUploadFile, in, opts...)
}

func (c *syncServiceClient) DeleteFiles(ctx context.Context, in *DeleteFilesRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodDeleteFiles, in, opts...)
}

func (c *syncServiceClient) FinishUploads(ctx context.Context, in *FinishUploadsRequest, opts ...grpc.CallOption) (*OperationIDResponse, error) {
	return invoke[OperationIDResponse](ctx, c.cc, MethodFinishUploads, in, opts...)
}

func (c *syncServiceClient) CheckOperationStatus(ctx context.Context, in *OperationIDRequest, opts ...grpc.CallOption) (*OperationStatusResponse, error) {
	return invoke[OperationStatusResponse](ctx, c.cc, MethodCheckOperationStatus, in, opts...)
}

func (c *syncServiceClient) RemoveOperationID(ctx context.Context, in *OperationIDRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodRemoveOperationID, in, opts...)
}

func (c *syncServiceClient) SetupInboundTransfer(ctx context.Context, in *InboundTransferRequest, opts ...grpc.CallOption) (*CountResponse, error) {
	return invoke[CountResponse](ctx, c.cc, MethodSetupInboundTransfer, in, opts...)
}

func (c *syncServiceClient) DownloadFile(ctx context.Context, in *DownloadFileRequest, opts ...grpc.CallOption) (*DownloadFileResponse, error) {
	return invoke[DownloadFileResponse](ctx, c.cc, MethodDownloadFile, in, opts...)
}

func (c *syncServiceClient) Cleanup(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodCleanup, in, opts...)
}

// SyncServiceServer is the server API for SyncService.
type SyncServiceServer interface {
	Ping(context.Context, *Empty) (*Empty, error)
	Lock(context.Context, *Empty) (*Empty, error)
	Unlock(context.Context, *Empty) (*Empty, error)
	GetFileIndex(context.Context, *Empty) (*FileIndexResponse, error)
	UploadFile(context.Context, *UploadFileRequest) (*Empty, error)
	DeleteFiles(context.Context, *DeleteFilesRequest) (*Empty, error)
	FinishUploads(context.Context, *FinishUploadsRequest) (*OperationIDResponse, error)
	CheckOperationStatus(context.Context, *OperationIDRequest) (*OperationStatusResponse, error)
	RemoveOperationID(context.Context, *OperationIDRequest) (*Empty, error)
	SetupInboundTransfer(context.Context, *InboundTransferRequest) (*CountResponse, error)
	DownloadFile(context.Context, *DownloadFileRequest) (*DownloadFileResponse, error)
	Cleanup(context.Context, *Empty) (*Empty, error)
}

func unary[Req, Resp any](name string, call func(SyncServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}

			req := new(Req)
			if err := Decode(in, req); err != nil {
				return nil, status.Error(codes.InvalidArgument, err.Error())
			}

			handler := func(ctx context.Context, r any) (any, error) {
				resp, err := call(srv.(SyncServiceServer), ctx, r.(*Req))
				if err != nil {
					return nil, err
				}
				out, err := Encode(resp)
				if err != nil {
					return nil, status.Error(codes.Internal, err.Error())
				}
				return out, nil
			}

			if interceptor == nil {
				return handler(ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, req, info, handler)
		},
	}
}

// SyncServiceDesc is the grpc.ServiceDesc for SyncService.
var SyncServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SyncServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodPing, SyncServiceServer.Ping),
		unary(MethodLock, SyncServiceServer.Lock),
		unary(MethodUnlock, SyncServiceServer.Unlock),
		unary(MethodGetFileIndex, SyncServiceServer.GetFileIndex),
		unary(MethodUploadFile, SyncServiceServer.UploadFile),
		unary(MethodDeleteFiles, SyncServiceServer.DeleteFiles),
		unary(MethodFinishUploads, SyncServiceServer.FinishUploads),
		unary(MethodCheckOperationStatus, SyncServiceServer.CheckOperationStatus),
		unary(MethodRemoveOperationID, SyncServiceServer.RemoveOperationID),
		unary(MethodSetupInboundTransfer, SyncServiceServer.SetupInboundTransfer),
		unary(MethodDownloadFile, SyncServiceServer.DownloadFile),
		unary(MethodCleanup, SyncServiceServer.Cleanup),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "syncserver/sync.proto",
}

func RegisterSyncServiceServer(s grpc.ServiceRegistrar, srv SyncServiceServer) {
	s.RegisterService(&SyncServiceDesc, srv)
}
