package grpc

import (
	"context"

	"github.com/dmitrijs2005/syncserver/internal/common"
	"github.com/dmitrijs2005/syncserver/internal/server/auth"
	"github.com/dmitrijs2005/syncserver/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const callerKey ctxKey = "caller"

func firstValue(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// callerInterceptor authenticates every call: the access token names the
// account and the device id header names the device acting on it.
func (s *GRPCServer) callerInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {

	var accessToken, deviceID string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		accessToken = firstValue(md, common.AccessTokenHeaderName)
		deviceID = firstValue(md, common.DeviceIDHeaderName)
	}
	if len(accessToken) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	if len(deviceID) == 0 {
		return nil, status.Error(codes.InvalidArgument, "missing device id")
	}

	accountID, err := auth.GetAccountIDFromToken(accessToken, s.jwtSecret)
	if err != nil {
		s.logger.Warn(ctx, "rejected token", "method", info.FullMethod, "error", err)
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	ctx = context.WithValue(ctx, callerKey, services.Caller{AccountID: accountID, DeviceID: deviceID})

	return handler(ctx, req)
}

func callerFromContext(ctx context.Context) (services.Caller, error) {
	c, ok := ctx.Value(callerKey).(services.Caller)
	if !ok {
		return services.Caller{}, status.Error(codes.Unauthenticated, "unauthorized")
	}
	return c, nil
}
