package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/pixil98/go-realm/internal/broadcast"
	"github.com/pixil98/go-realm/internal/game"
)

// Client calls the world service as one account.
type Client struct {
	conn      grpc.ClientConnInterface
	accountID string
}

func NewClient(conn grpc.ClientConnInterface, accountID string) *Client {
	return &Client{conn: conn, accountID: accountID}
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	if c.accountID == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, AccountHeader, c.accountID)
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	return c.conn.Invoke(c.outgoing(ctx), "/"+ServiceName+"/"+method, req, resp, grpc.CallContentSubtype(CodecName))
}

func (c *Client) CreateCharacter(ctx context.Context, name, vocation string) (game.Player, error) {
	var resp PlayerResponse
	err := c.invoke(ctx, "CreateCharacter", &CreateCharacterRequest{Name: name, Vocation: vocation}, &resp)
	return resp.Player, err
}

func (c *Client) ListCharacters(ctx context.Context) ([]game.Player, error) {
	var resp ListCharactersResponse
	err := c.invoke(ctx, "ListCharacters", &ListCharactersRequest{}, &resp)
	return resp.Characters, err
}

func (c *Client) JoinWorld(ctx context.Context, playerID string) (WorldStateResponse, error) {
	var resp WorldStateResponse
	err := c.invoke(ctx, "JoinWorld", &JoinWorldRequest{PlayerID: playerID}, &resp)
	return resp, err
}

func (c *Client) LeaveWorld(ctx context.Context) error {
	var resp LeaveWorldResponse
	return c.invoke(ctx, "LeaveWorld", &LeaveWorldRequest{}, &resp)
}

func (c *Client) MovePlayer(ctx context.Context, x, y float64, movementType string) (MovePlayerResponse, error) {
	var resp MovePlayerResponse
	err := c.invoke(ctx, "MovePlayer", &MovePlayerRequest{TargetX: x, TargetY: y, MovementType: movementType}, &resp)
	return resp, err
}

func (c *Client) UpdatePlayerStats(ctx context.Context, hp, mp int) (game.Player, error) {
	var resp PlayerResponse
	err := c.invoke(ctx, "UpdatePlayerStats", &UpdatePlayerStatsRequest{HP: hp, MP: mp}, &resp)
	return resp.Player, err
}

func (c *Client) InteractWithEntity(ctx context.Context, entityID, verb string, params map[string]string) (InteractResponse, error) {
	var resp InteractResponse
	err := c.invoke(ctx, "InteractWithEntity", &InteractRequest{EntityID: entityID, InteractionType: verb, Parameters: params}, &resp)
	return resp, err
}

func (c *Client) GetWorldState(ctx context.Context) (WorldStateResponse, error) {
	var resp WorldStateResponse
	err := c.invoke(ctx, "GetWorldState", &GetWorldStateRequest{}, &resp)
	return resp, err
}

func (c *Client) GetWorldEntities(ctx context.Context) ([]game.Entity, error) {
	var resp EntitiesResponse
	err := c.invoke(ctx, "GetWorldEntities", &GetWorldEntitiesRequest{}, &resp)
	return resp.Entities, err
}

func (c *Client) ListOnlinePlayers(ctx context.Context, limit int) ([]game.Player, error) {
	var resp PlayersResponse
	err := c.invoke(ctx, "ListOnlinePlayers", &ListOnlinePlayersRequest{Limit: limit}, &resp)
	return resp.Players, err
}

// UpdateStream receives world update batches.
type UpdateStream struct {
	stream grpc.ClientStream
}

func (s *UpdateStream) Recv() (broadcast.Batch, error) {
	var b broadcast.Batch
	err := s.stream.RecvMsg(&b)
	return b, err
}

// GetWorldUpdates opens the update stream. Cancel ctx to close it.
func (c *Client) GetWorldUpdates(ctx context.Context) (*UpdateStream, error) {
	stream, err := c.conn.NewStream(c.outgoing(ctx), &serviceDesc.Streams[0], "/"+ServiceName+"/GetWorldUpdates", grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&WorldUpdatesRequest{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &UpdateStream{stream: stream}, nil
}
