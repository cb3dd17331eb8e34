package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pixil98/go-realm/internal/broadcast"
	"github.com/pixil98/go-realm/internal/game"
)

var statusCodes = map[game.Code]codes.Code{
	game.CodeNotFound:         codes.NotFound,
	game.CodeInvalidArgument:  codes.InvalidArgument,
	game.CodePermissionDenied: codes.PermissionDenied,
	game.CodeConflict:         codes.AlreadyExists,
	game.CodeUnauthenticated:  codes.Unauthenticated,
	game.CodeInternal:         codes.Internal,
}

// toStatus converts a world error to a gRPC status. Errors without a code
// become Internal with a generic message.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	case errors.Is(err, broadcast.ErrDropped):
		return status.Error(codes.ResourceExhausted, err.Error())
	}

	var ge *game.Error
	if errors.As(err, &ge) {
		if c, ok := statusCodes[ge.Code]; ok && c != codes.Internal {
			return status.Error(c, ge.Message)
		}
	}
	return status.Error(codes.Internal, "internal error")
}
