// Package movement clamps requested moves to what an entity can cover in one tick.
package movement

import (
	"math"
	"time"

	"github.com/pixil98/go-realm/internal/game"
)

// DefaultTick is the time one movement request is allowed to cover.
const DefaultTick = 100 * time.Millisecond

// Bounds is the rectangle entities may occupy, inclusive on both ends.
type Bounds struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// DefaultBounds is the [0,1000]×[0,1000] world.
var DefaultBounds = Bounds{MaxX: 1000, MaxY: 1000}

// Contains reports whether p lies inside the bounds.
func (b Bounds) Contains(p game.Position) bool {
	return p.X >= b.MinX && p.X <= b.MaxX && p.Y >= b.MinY && p.Y <= b.MaxY
}

// Result is an accepted move.
type Result struct {
	Position game.Position
	Facing   game.Facing
	// Clamped is set when the step was shortened to the speed limit.
	Clamped bool
}

// Validator checks movement requests against the world bounds and a tick length.
type Validator struct {
	Bounds Bounds
	Tick   time.Duration
}

// NewValidator returns a validator using the default bounds and tick.
func NewValidator() Validator {
	return Validator{Bounds: DefaultBounds, Tick: DefaultTick}
}

// Validate returns where an entity at from, moving at speed units per second,
// ends up when it asks to go to target. Targets outside the bounds are
// rejected. Steps longer than speed×tick are scaled down along the same
// direction. A zero-length move keeps the current facing.
func (v Validator) Validate(from, target game.Position, speed float64, current game.Facing) (Result, error) {
	if math.IsNaN(target.X) || math.IsNaN(target.Y) || !v.Bounds.Contains(target) {
		return Result{}, game.InvalidArgumentf("target (%.1f, %.1f) is outside the world", target.X, target.Y)
	}

	dx := target.X - from.X
	dy := target.Y - from.Y
	dist := math.Hypot(dx, dy)
	if dist == 0 {
		return Result{Position: from, Facing: current}, nil
	}

	res := Result{Position: target, Facing: FacingFor(dx, dy)}

	limit := max(speed, 0) * v.Tick.Seconds()
	if dist > limit {
		scale := limit / dist
		res.Position = game.Position{X: from.X + dx*scale, Y: from.Y + dy*scale}
		res.Clamped = true
	}
	return res, nil
}

// FacingFor derives a facing from the dominant axis of a movement delta.
// Ties go to the vertical axis. Y grows downward, as on screen.
func FacingFor(dx, dy float64) game.Facing {
	if math.Abs(dx) > math.Abs(dy) {
		if dx > 0 {
			return game.FacingRight
		}
		return game.FacingLeft
	}
	if dy < 0 {
		return game.FacingUp
	}
	return game.FacingDown
}
