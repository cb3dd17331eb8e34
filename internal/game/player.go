package game

import (
	"slices"
	"strings"
	"time"
)

// Vocation is a player's class.
type Vocation string

const (
	VocationKnight   Vocation = "knight"
	VocationMage     Vocation = "mage"
	VocationPaladin  Vocation = "paladin"
	VocationAssassin Vocation = "assassin"
)

// Vocations lists the vocations a new character may pick.
var Vocations = []Vocation{VocationKnight, VocationMage, VocationPaladin, VocationAssassin}

// ParseVocation is case-insensitive so "Knight" from the client is accepted.
func ParseVocation(s string) (Vocation, error) {
	v := Vocation(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Vocations, v) {
		return v, nil
	}
	return "", InvalidArgumentf("unknown vocation %q", s)
}

// VocationStats are the level 1 stats of a vocation.
type VocationStats struct {
	HP      int
	MP      int
	Attack  int
	Defense int
	Speed   float64
}

var vocationStats = map[Vocation]VocationStats{
	VocationKnight:   {HP: 150, MP: 30, Attack: 14, Defense: 8, Speed: 90},
	VocationMage:     {HP: 80, MP: 150, Attack: 8, Defense: 3, Speed: 100},
	VocationPaladin:  {HP: 120, MP: 80, Attack: 11, Defense: 6, Speed: 95},
	VocationAssassin: {HP: 95, MP: 50, Attack: 16, Defense: 4, Speed: 120},
}

// StatsFor returns the starting stats for v.
func StatsFor(v Vocation) VocationStats {
	return vocationStats[v]
}

// Player is a player character. Only characters that have joined the world are
// held in the PlayerRegistry; the rest live in storage.
type Player struct {
	ID        string   `json:"id"`
	AccountID string   `json:"account_id"`
	Name      string   `json:"name"`
	Vocation  Vocation `json:"vocation"`

	Level      int `json:"level"`
	Experience int `json:"experience"`

	Position Position      `json:"position"`
	Spawn    Position      `json:"spawn"`
	Facing   Facing        `json:"facing_direction"`
	State    MovementState `json:"movement_state"`

	HP    int `json:"hp"`
	MaxHP int `json:"max_hp"`
	MP    int `json:"mp"`
	MaxMP int `json:"max_mp"`

	Attack  int     `json:"attack"`
	Defense int     `json:"defense"`
	Speed   float64 `json:"speed"`

	Online    bool      `json:"online"`
	UpdatedAt time.Time `json:"updated_at"`

	// Inventory holds the ids of item entities owned by the player.
	Inventory []string `json:"inventory"`

	Version uint64 `json:"version"`
}

// NewPlayer creates a level 1 character with the vocation's starting stats.
func NewPlayer(id, accountID, name string, v Vocation, spawn Position) Player {
	s := StatsFor(v)
	return Player{
		ID:        id,
		AccountID: accountID,
		Name:      name,
		Vocation:  v,
		Level:     1,
		Position:  spawn,
		Spawn:     spawn,
		Facing:    FacingDown,
		State:     StateIdle,
		HP:        s.HP,
		MaxHP:     s.HP,
		MP:        s.MP,
		MaxMP:     s.MP,
		Attack:    s.Attack,
		Defense:   s.Defense,
		Speed:     s.Speed,
		Inventory: []string{},
	}
}

// Clone returns a deep copy of the player.
func (p Player) Clone() Player {
	p.Inventory = slices.Clone(p.Inventory)
	return p
}

// Owns reports whether the item id is in the player's inventory.
func (p Player) Owns(itemID string) bool {
	return slices.Contains(p.Inventory, itemID)
}
