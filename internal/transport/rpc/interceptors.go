package rpc

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// AccountHeader carries the account id verified by the auth gateway.
const AccountHeader = "x-realm-account-id"

type contextKey string

const accountContextKey contextKey = "realm-account-id"

// AccountFrom returns the account id the interceptors stored in ctx.
func AccountFrom(ctx context.Context) string {
	v, _ := ctx.Value(accountContextKey).(string)
	return v
}

func withAccount(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountContextKey, accountID)
}

func accountFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(AccountHeader) {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func worldMethod(fullMethod string) bool {
	return strings.HasPrefix(fullMethod, "/"+ServiceName+"/")
}

// authenticate resolves the account for a world method, or fails Unauthenticated.
func authenticate(ctx context.Context) (context.Context, error) {
	accountID := accountFromMetadata(ctx)
	if accountID == "" {
		return nil, status.Error(codes.Unauthenticated, "missing "+AccountHeader+" metadata")
	}
	return withAccount(ctx, accountID), nil
}

func logFailure(ctx context.Context, method string, cause, st error) {
	if status.Code(st) == codes.Internal {
		slog.ErrorContext(ctx, "request failed", "method", method, "account", AccountFrom(ctx), "error", cause)
		return
	}
	slog.DebugContext(ctx, "request declined", "method", method, "account", AccountFrom(ctx), "error", cause)
}

func unaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !worldMethod(info.FullMethod) {
		return handler(ctx, req)
	}
	ctx, err := authenticate(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := handler(ctx, req)
	if err != nil {
		st := toStatus(err)
		logFailure(ctx, info.FullMethod, err, st)
		return nil, st
	}
	return resp, nil
}

type accountStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *accountStream) Context() context.Context {
	return s.ctx
}

func streamInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	if !worldMethod(info.FullMethod) {
		return handler(srv, ss)
	}
	ctx, err := authenticate(ss.Context())
	if err != nil {
		return err
	}

	if err := handler(srv, &accountStream{ServerStream: ss, ctx: ctx}); err != nil {
		st := toStatus(err)
		logFailure(ctx, info.FullMethod, err, st)
		return st
	}
	return nil
}
