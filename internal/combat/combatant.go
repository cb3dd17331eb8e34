package combat

import (
	"github.com/pixil98/go-realm/internal/game"
)

// Combatant is anything that can strike a monster.
type Combatant interface {
	CombatName() string
	AttackPower() int
	CombatPosition() game.Position
}

// PlayerCombatant adapts a Player for the combat rules.
type PlayerCombatant struct {
	Player game.Player
}

func (c PlayerCombatant) CombatName() string            { return c.Player.Name }
func (c PlayerCombatant) AttackPower() int              { return c.Player.Attack }
func (c PlayerCombatant) CombatPosition() game.Position { return c.Player.Position }
