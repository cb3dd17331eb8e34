package rpc

import (
	"github.com/pixil98/go-realm/internal/game"
	"github.com/pixil98/go-realm/internal/interaction"
	"github.com/pixil98/go-realm/internal/world"
)

type CreateCharacterRequest struct {
	Name     string `json:"name"`
	Vocation string `json:"vocation"`
}

type PlayerResponse struct {
	Player game.Player `json:"player"`
}

type ListCharactersRequest struct{}

type ListCharactersResponse struct {
	Characters []game.Player `json:"characters"`
}

// JoinWorldRequest joins with PlayerID, or the account's first character when empty.
type JoinWorldRequest struct {
	PlayerID string `json:"player_id,omitempty"`
}

type LeaveWorldRequest struct{}

type LeaveWorldResponse struct {
	Success bool `json:"success"`
}

type MovePlayerRequest struct {
	TargetX      float64 `json:"target_x"`
	TargetY      float64 `json:"target_y"`
	MovementType string  `json:"movement_type,omitempty"`
}

type MovePlayerResponse = world.MoveResult

// UpdatePlayerStatsRequest sets current HP and MP. Level and experience are
// earned in the world and cannot be set by the client.
type UpdatePlayerStatsRequest struct {
	HP int `json:"hp"`
	MP int `json:"mp"`
}

type InteractRequest struct {
	EntityID        string            `json:"entity_id"`
	InteractionType string            `json:"interaction_type"`
	Parameters      map[string]string `json:"parameters,omitempty"`
}

type InteractResponse = interaction.Result

type GetWorldStateRequest struct{}

// WorldStateResponse is also returned by JoinWorld.
type WorldStateResponse = world.Snapshot

type GetWorldEntitiesRequest struct{}

type EntitiesResponse struct {
	Entities []game.Entity `json:"entities"`
}

type ListOnlinePlayersRequest struct {
	Limit int `json:"limit,omitempty"`
}

type PlayersResponse struct {
	Players []game.Player `json:"players"`
}

type WorldUpdatesRequest struct{}
