package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/syncserver/internal/logging"
	pb "github.com/dmitrijs2005/syncserver/internal/proto"
	"github.com/dmitrijs2005/syncserver/internal/server/models"
	"github.com/dmitrijs2005/syncserver/internal/server/services"
	"google.golang.org/grpc"
)

// MaxMessageSize bounds a single upload or download payload on the wire.
const MaxMessageSize = 64 << 20

// SyncService is what the gRPC layer needs from services.SyncService.
type SyncService interface {
	Ping(ctx context.Context, c services.Caller) error
	Lock(ctx context.Context, c services.Caller) error
	Unlock(ctx context.Context, c services.Caller) error
	GetFileIndex(ctx context.Context, c services.Caller) (*services.FileIndex, error)
	UploadFile(ctx context.Context, c services.Caller, req *services.UploadRequest) error
	DeleteFiles(ctx context.Context, c services.Caller, reqs []services.DeleteRequest) error
	FinishUploads(ctx context.Context, c services.Caller, expectedIndexVersion int64) (string, error)
	CheckOperationStatus(ctx context.Context, c services.Caller, id string) (*models.Operation, error)
	RemoveOperationID(ctx context.Context, c services.Caller, id string) error
	SetupInboundTransfer(ctx context.Context, c services.Caller, uuids []string) (int, error)
	DownloadFile(ctx context.Context, c services.Caller, uuid string) (*models.File, []byte, error)
	Cleanup(ctx context.Context, c services.Caller) error
}

type GRPCServer struct {
	address   string
	sync      SyncService
	logger    logging.Logger
	jwtSecret []byte
}

func NewGRPCServer(a string, l logging.Logger, svc SyncService, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		sync:      svc,
		jwtSecret: []byte(secretKey),
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	// creates gRPC-server
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.callerInterceptor),
		grpc.MaxRecvMsgSize(MaxMessageSize),
		grpc.MaxSendMsgSize(MaxMessageSize),
	)

	// registers service
	pb.RegisterSyncServiceServer(srv, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
