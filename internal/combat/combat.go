// Package combat holds the attack rules applied to monsters.
package combat

import (
	"time"

	"github.com/pixil98/go-realm/internal/game"
)

// MeleeRange is the furthest an attacker may stand from its target.
const MeleeRange = 64.0

// Blow is the outcome of one successful attack.
type Blow struct {
	Damage int
	HPLeft int
	// Killed is set on the blow that took the target from alive to dead.
	Killed bool
	// Experience is the reward for the kill, zero unless Killed.
	Experience int
}

// Strike applies one attack from attacker to target in place.
//
// It is meant to run inside EntityStore.Update so that the read of the
// target's health and the write of the new value are one atomic step:
// concurrent strikes on one monster never lose damage and only one of them
// can observe the alive to dead transition.
func Strike(attacker Combatant, target *game.Entity, now time.Time) (Blow, error) {
	if target.Kind != game.KindMonster {
		return Blow{}, game.PermissionDeniedf("you cannot attack %s", target.Name)
	}
	if !target.Alive {
		return Blow{}, game.NotFoundf("%s is already dead", target.Name)
	}
	if d := game.Distance(attacker.CombatPosition(), target.Position); d > MeleeRange {
		return Blow{}, game.InvalidArgumentf("%s is too far away (%.0f > %.0f)", target.Name, d, MeleeRange)
	}

	dmg := Damage(attacker.AttackPower(), target.Defense)
	target.HP = max(0, target.HP-dmg)

	blow := Blow{Damage: dmg, HPLeft: target.HP}
	if target.HP == 0 {
		target.Alive = false
		target.DiedAt = now
		target.State = game.StateIdle
		blow.Killed = true
		blow.Experience = game.KillExperience(target.MaxHP)
	}
	return blow, nil
}
