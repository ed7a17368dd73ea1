package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/syncserver/internal/common"
	"github.com/dmitrijs2005/syncserver/internal/cryptox"
	"github.com/dmitrijs2005/syncserver/internal/logging"
	pb "github.com/dmitrijs2005/syncserver/internal/proto"
	"github.com/dmitrijs2005/syncserver/internal/server/auth"
	"github.com/dmitrijs2005/syncserver/internal/server/blobstore"
	"github.com/dmitrijs2005/syncserver/internal/server/repositories/memory"
	"github.com/dmitrijs2005/syncserver/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const testSecret = "k"

// startServer serves s over an in-memory listener with the same interceptor
// chain Run installs.
func startServer(t *testing.T, s *GRPCServer) pb.SyncServiceClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.callerInterceptor))
	pb.RegisterSyncServiceServer(srv, s)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return pb.NewSyncServiceClient(conn)
}

func newRealServer(t *testing.T) pb.SyncServiceClient {
	t.Helper()
	svc := services.NewSyncService(memory.NewManager(), blobstore.NewMemoryStore(), time.Minute, logging.NewNop())
	return startServer(t, NewGRPCServer("", logging.NewNop(), svc, testSecret))
}

func asDevice(t *testing.T, account, device string) context.Context {
	t.Helper()
	tok, err := auth.GenerateToken(account, []byte(testSecret), time.Hour)
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(context.Background(),
		common.AccessTokenHeaderName, tok,
		common.DeviceIDHeaderName, device)
}

func requireCode(t *testing.T, err error, code codes.Code) *status.Status {
	t.Helper()
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, code, st.Code(), st.Message())
	return st
}

// ---- interceptor ----

func TestInterceptor_MissingToken(t *testing.T) {
	c := newRealServer(t)
	_, err := c.Ping(context.Background(), &pb.Empty{})
	requireCode(t, err, codes.Unauthenticated)
}

func TestInterceptor_MissingDevice(t *testing.T) {
	c := newRealServer(t)
	tok, err := auth.GenerateToken("acc", []byte(testSecret), time.Hour)
	require.NoError(t, err)
	ctx := metadata.AppendToOutgoingContext(context.Background(), common.AccessTokenHeaderName, tok)

	_, err = c.Ping(ctx, &pb.Empty{})
	requireCode(t, err, codes.InvalidArgument)
}

func TestInterceptor_BadToken(t *testing.T) {
	c := newRealServer(t)
	ctx := metadata.AppendToOutgoingContext(context.Background(),
		common.AccessTokenHeaderName, "not.a.jwt",
		common.DeviceIDHeaderName, "d1")

	_, err := c.Lock(ctx, &pb.Empty{})
	requireCode(t, err, codes.Unauthenticated)
}

// ---- handlers ----

func TestUploadCommitDownload(t *testing.T) {
	c := newRealServer(t)
	a := asDevice(t, "acc", "dev-a")
	b := asDevice(t, "acc", "dev-b")

	_, err := c.Ping(a, &pb.Empty{})
	require.NoError(t, err)

	_, err = c.Lock(a, &pb.Empty{})
	require.NoError(t, err)

	// вторая машина ждёт
	_, err = c.Lock(b, &pb.Empty{})
	st := requireCode(t, err, codes.Aborted)
	assert.Equal(t, common.ErrLockAlreadyHeld.Error(), st.Message())

	data := []byte("hello")
	_, err = c.UploadFile(a, &pb.UploadFileRequest{
		Attributes: pb.FileAttributes{UUID: "u1", CloudFileName: "a.txt", MimeType: "text/plain",
			AppMetaData: map[string]string{"k": "v"}},
		Checksum: cryptox.Checksum(data),
		Data:     data,
	})
	require.NoError(t, err)

	idx, err := c.GetFileIndex(a, &pb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, idx.StagedUploads)

	op, err := c.FinishUploads(a, &pb.FinishUploadsRequest{ExpectedIndexVersion: idx.IndexVersion})
	require.NoError(t, err)

	st2, err := c.CheckOperationStatus(a, &pb.OperationIDRequest{OperationID: op.OperationID})
	require.NoError(t, err)
	assert.Equal(t, common.OperationStatusSuccessfulCompletion, st2.StatusCode)
	assert.Equal(t, 1, st2.Count)

	_, err = c.RemoveOperationID(a, &pb.OperationIDRequest{OperationID: op.OperationID})
	require.NoError(t, err)
	_, err = c.CheckOperationStatus(a, &pb.OperationIDRequest{OperationID: op.OperationID})
	st = requireCode(t, err, codes.NotFound)
	assert.Equal(t, common.ErrOperationNotFound.Error(), st.Message())

	_, err = c.Lock(b, &pb.Empty{})
	require.NoError(t, err)

	n, err := c.SetupInboundTransfer(b, &pb.InboundTransferRequest{UUIDs: []string{"u1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n.Count)

	dl, err := c.DownloadFile(b, &pb.DownloadFileRequest{UUID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, data, dl.Data)
	assert.Equal(t, "a.txt", dl.Entry.CloudFileName)
	assert.Equal(t, map[string]string{"k": "v"}, dl.Entry.AppMetaData)
	assert.Equal(t, int64(len(data)), dl.Entry.FileSizeBytes)

	_, err = c.Cleanup(b, &pb.Empty{})
	require.NoError(t, err)
	_, err = c.Unlock(b, &pb.Empty{})
	st = requireCode(t, err, codes.FailedPrecondition)
	assert.Equal(t, common.ErrLockNotHeld.Error(), st.Message())
}

func TestDeleteFiles_VersionConflict(t *testing.T) {
	c := newRealServer(t)
	a := asDevice(t, "acc", "dev-a")

	_, err := c.Lock(a, &pb.Empty{})
	require.NoError(t, err)
	_, err = c.DeleteFiles(a, &pb.DeleteFilesRequest{Files: []pb.DeleteFile{{UUID: "missing"}}})
	st := requireCode(t, err, codes.InvalidArgument)
	assert.Equal(t, common.ErrIncorrectRequest.Error(), st.Message())
}

// ---- error mapping ----

type failingSync struct {
	SyncService
	err error
}

func (f *failingSync) Lock(context.Context, services.Caller) error { return f.err }

func TestToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
		msg  string
	}{
		{"lock held", common.ErrLockAlreadyHeld, codes.Aborted, common.ErrLockAlreadyHeld.Error()},
		{"wrapped conflict", errors.Join(errors.New("ctx"), common.ErrVersionConflict), codes.FailedPrecondition, common.ErrVersionConflict.Error()},
		{"checksum", common.ErrChecksumMismatch, codes.DataLoss, common.ErrChecksumMismatch.Error()},
		{"unknown", errors.New("disk on fire"), codes.Internal, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := startServer(t, NewGRPCServer("", logging.NewNop(), &failingSync{err: tt.err}, testSecret))
			_, err := c.Lock(asDevice(t, "acc", "d"), &pb.Empty{})
			st := requireCode(t, err, tt.code)
			assert.Equal(t, tt.msg, st.Message())
		})
	}
}
