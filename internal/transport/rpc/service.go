// Package rpc serves the world over gRPC with a JSON codec.
package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/pixil98/go-realm/internal/broadcast"
	"github.com/pixil98/go-realm/internal/game"
	"github.com/pixil98/go-realm/internal/interaction"
	"github.com/pixil98/go-realm/internal/world"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "world.v1.WorldService"

// World is the operation facade the handler serves.
type World interface {
	CreateCharacter(ctx context.Context, accountID, name, vocation string) (game.Player, error)
	ListCharacters(ctx context.Context, accountID string) ([]game.Player, error)
	Join(ctx context.Context, accountID, playerID string) (world.Snapshot, error)
	Leave(ctx context.Context, accountID string) error
	Move(ctx context.Context, accountID string, target game.Position, movementType string) (world.MoveResult, error)
	UpdateVitals(ctx context.Context, accountID string, hp, mp int) (game.Player, error)
	Interact(ctx context.Context, accountID, entityID, verb string, params map[string]string) (interaction.Result, error)
	State(ctx context.Context, accountID string) (world.Snapshot, error)
	VisibleEntities() []game.Entity
	OnlinePlayers(ctx context.Context, accountID string, limit int) ([]game.Player, error)
	Stream(ctx context.Context, send func(broadcast.Batch) error) error
}

// Handler implements world.v1.WorldService. The account id is placed in the
// context by the interceptors before any method runs.
type Handler struct {
	world World
}

func NewHandler(w World) *Handler {
	return &Handler{world: w}
}

type worldServer interface {
	getWorldUpdates(ctx context.Context, stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*worldServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateCharacter", (*Handler).createCharacter),
		unary("ListCharacters", (*Handler).listCharacters),
		unary("JoinWorld", (*Handler).joinWorld),
		unary("LeaveWorld", (*Handler).leaveWorld),
		unary("MovePlayer", (*Handler).movePlayer),
		unary("UpdatePlayerStats", (*Handler).updatePlayerStats),
		unary("InteractWithEntity", (*Handler).interact),
		unary("GetWorldState", (*Handler).getWorldState),
		unary("GetWorldEntities", (*Handler).getWorldEntities),
		unary("ListOnlinePlayers", (*Handler).listOnlinePlayers),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "GetWorldUpdates",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				var req WorldUpdatesRequest
				if err := stream.RecvMsg(&req); err != nil {
					return err
				}
				return srv.(worldServer).getWorldUpdates(stream.Context(), stream)
			},
		},
	},
	Metadata: "world/v1/world.proto",
}

// Register adds the world service to s.
func (h *Handler) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&serviceDesc, h)
}

func unary[Req, Resp any](name string, call func(*Handler, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			h := srv.(*Handler)
			if interceptor == nil {
				return call(h, ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
				return call(h, ctx, req.(*Req))
			})
		},
	}
}

func (h *Handler) createCharacter(ctx context.Context, req *CreateCharacterRequest) (*PlayerResponse, error) {
	p, err := h.world.CreateCharacter(ctx, AccountFrom(ctx), req.Name, req.Vocation)
	if err != nil {
		return nil, err
	}
	return &PlayerResponse{Player: p}, nil
}

func (h *Handler) listCharacters(ctx context.Context, _ *ListCharactersRequest) (*ListCharactersResponse, error) {
	players, err := h.world.ListCharacters(ctx, AccountFrom(ctx))
	if err != nil {
		return nil, err
	}
	return &ListCharactersResponse{Characters: players}, nil
}

func (h *Handler) joinWorld(ctx context.Context, req *JoinWorldRequest) (*WorldStateResponse, error) {
	snap, err := h.world.Join(ctx, AccountFrom(ctx), req.PlayerID)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (h *Handler) leaveWorld(ctx context.Context, _ *LeaveWorldRequest) (*LeaveWorldResponse, error) {
	if err := h.world.Leave(ctx, AccountFrom(ctx)); err != nil {
		return nil, err
	}
	return &LeaveWorldResponse{Success: true}, nil
}

func (h *Handler) movePlayer(ctx context.Context, req *MovePlayerRequest) (*MovePlayerResponse, error) {
	target := game.Position{X: req.TargetX, Y: req.TargetY}
	res, err := h.world.Move(ctx, AccountFrom(ctx), target, req.MovementType)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (h *Handler) updatePlayerStats(ctx context.Context, req *UpdatePlayerStatsRequest) (*PlayerResponse, error) {
	p, err := h.world.UpdateVitals(ctx, AccountFrom(ctx), req.HP, req.MP)
	if err != nil {
		return nil, err
	}
	return &PlayerResponse{Player: p}, nil
}

func (h *Handler) interact(ctx context.Context, req *InteractRequest) (*InteractResponse, error) {
	res, err := h.world.Interact(ctx, AccountFrom(ctx), req.EntityID, req.InteractionType, req.Parameters)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (h *Handler) getWorldState(ctx context.Context, _ *GetWorldStateRequest) (*WorldStateResponse, error) {
	snap, err := h.world.State(ctx, AccountFrom(ctx))
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (h *Handler) getWorldEntities(_ context.Context, _ *GetWorldEntitiesRequest) (*EntitiesResponse, error) {
	return &EntitiesResponse{Entities: h.world.VisibleEntities()}, nil
}

func (h *Handler) listOnlinePlayers(ctx context.Context, req *ListOnlinePlayersRequest) (*PlayersResponse, error) {
	players, err := h.world.OnlinePlayers(ctx, AccountFrom(ctx), req.Limit)
	if err != nil {
		return nil, err
	}
	return &PlayersResponse{Players: players}, nil
}

func (h *Handler) getWorldUpdates(ctx context.Context, stream grpc.ServerStream) error {
	return h.world.Stream(ctx, func(b broadcast.Batch) error {
		return stream.SendMsg(&b)
	})
}
