package game

import (
	"fmt"
	"maps"
	"math"
	"time"
)

// Kind is the category of a world entity. It decides which interactions are legal.
type Kind string

const (
	KindNPC     Kind = "npc"
	KindMonster Kind = "monster"
	KindItem    Kind = "item"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindNPC, KindMonster, KindItem:
		return true
	}
	return false
}

// Facing is a 4-way compass direction. The numbering matches the client sprites.
type Facing int

const (
	FacingDown Facing = iota
	FacingLeft
	FacingUp
	FacingRight
)

func (f Facing) String() string {
	switch f {
	case FacingDown:
		return "down"
	case FacingLeft:
		return "left"
	case FacingUp:
		return "up"
	case FacingRight:
		return "right"
	}
	return fmt.Sprintf("facing(%d)", int(f))
}

// MovementState is the presentation state of an entity or player.
type MovementState string

const (
	StateIdle   MovementState = "idle"
	StateWalk   MovementState = "walk"
	StateRun    MovementState = "run"
	StateAttack MovementState = "attack"
)

// ParseMovementState accepts the client's movement names. An empty string is walk.
func ParseMovementState(s string) (MovementState, error) {
	switch MovementState(s) {
	case "":
		return StateWalk, nil
	case StateIdle, StateWalk, StateRun, StateAttack:
		return MovementState(s), nil
	}
	return "", InvalidArgumentf("unknown movement type %q", s)
}

// Position is a point on the world plane.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance is the euclidean distance between two positions.
func Distance(a, b Position) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// Entity is any non-player dynamic object in the world: an NPC, a monster or an item.
//
// Entities held by an EntityStore are immutable snapshots. Mutations go through
// the store, which copies the entity, applies the change and swaps it in.
type Entity struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	Name string `json:"name"`

	Position Position `json:"position"`
	Spawn    Position `json:"spawn"`

	HP    int `json:"hp"`
	MaxHP int `json:"max_hp"`
	MP    int `json:"mp"`
	MaxMP int `json:"max_mp"`

	Attack  int     `json:"attack"`
	Defense int     `json:"defense"`
	Speed   float64 `json:"speed"`

	State      MovementState     `json:"movement_state"`
	Facing     Facing            `json:"facing_direction"`
	Properties map[string]string `json:"properties,omitempty"`

	Alive          bool      `json:"alive"`
	DiedAt         time.Time `json:"died_at,omitzero"`
	RespawnSeconds int       `json:"respawn_delay_seconds"`

	// ItemDefID links an item to its definition record. Empty for npcs and monsters.
	ItemDefID string `json:"item_def_id,omitempty"`
	// OwnerID is set once a player has picked the item up.
	OwnerID string `json:"owner_id,omitempty"`

	// Version increases on every write to the entity.
	Version uint64 `json:"version"`
}

// Clone returns a deep copy of the entity.
func (e Entity) Clone() Entity {
	e.Properties = maps.Clone(e.Properties)
	return e
}

// Visible reports whether the entity shows up in world listings.
// Dead monsters are hidden until they respawn.
func (e Entity) Visible() bool {
	if e.Kind == KindMonster {
		return e.Alive
	}
	return e.OwnerID == ""
}

// RespawnDelay is the configured respawn delay as a duration.
func (e Entity) RespawnDelay() time.Duration {
	return time.Duration(e.RespawnSeconds) * time.Second
}

// Property returns a property value or def when it is unset.
func (e Entity) Property(key, def string) string {
	if v, ok := e.Properties[key]; ok && v != "" {
		return v
	}
	return def
}

// Validate checks the fields every entity must carry.
func (e Entity) Validate() error {
	if e.ID == "" {
		return InvalidArgumentf("entity id is required")
	}
	if !e.Kind.Valid() {
		return InvalidArgumentf("entity %s: unknown kind %q", e.ID, e.Kind)
	}
	if e.HP < 0 || e.HP > e.MaxHP {
		return InvalidArgumentf("entity %s: hp %d outside [0,%d]", e.ID, e.HP, e.MaxHP)
	}
	return nil
}

// ItemDefinition describes a kind of item. Item entities reference one by id.
type ItemDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Sprite      string `json:"sprite"`
}
