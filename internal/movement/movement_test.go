package movement

import (
	"math"
	"testing"
	"time"

	"github.com/pixil98/go-realm/internal/game"
	"github.com/pixil98/go-testutil"
)

func TestValidator_Validate(t *testing.T) {
	tests := map[string]struct {
		from       game.Position
		target     game.Position
		speed      float64
		facing     game.Facing
		expPos     game.Position
		expFacing  game.Facing
		expClamped bool
		expErr     string
	}{
		"short step accepted": {
			from: game.Position{X: 100, Y: 100}, target: game.Position{X: 105, Y: 100}, speed: 100,
			expPos: game.Position{X: 105, Y: 100}, expFacing: game.FacingRight,
		},
		"long step clamped": {
			from: game.Position{X: 100, Y: 100}, target: game.Position{X: 100, Y: 200}, speed: 100,
			expPos: game.Position{X: 100, Y: 110}, expFacing: game.FacingDown, expClamped: true,
		},
		"moving up": {
			from: game.Position{X: 100, Y: 100}, target: game.Position{X: 100, Y: 95}, speed: 100,
			expPos: game.Position{X: 100, Y: 95}, expFacing: game.FacingUp,
		},
		"moving left": {
			from: game.Position{X: 100, Y: 100}, target: game.Position{X: 0, Y: 100}, speed: 100,
			expPos: game.Position{X: 90, Y: 100}, expFacing: game.FacingLeft, expClamped: true,
		},
		"zero move keeps facing": {
			from: game.Position{X: 10, Y: 10}, target: game.Position{X: 10, Y: 10}, speed: 100, facing: game.FacingLeft,
			expPos: game.Position{X: 10, Y: 10}, expFacing: game.FacingLeft,
		},
		"edge of world": {
			from: game.Position{X: 995, Y: 0}, target: game.Position{X: 1000, Y: 0}, speed: 100,
			expPos: game.Position{X: 1000, Y: 0}, expFacing: game.FacingRight,
		},
		"outside world": {
			from: game.Position{X: 995, Y: 0}, target: game.Position{X: 1001, Y: 0}, speed: 100,
			expErr: "outside the world",
		},
		"negative target": {
			target: game.Position{X: -1, Y: 0}, speed: 100,
			expErr: "outside the world",
		},
		"not a number": {
			target: game.Position{X: math.NaN(), Y: 0}, speed: 100,
			expErr: "outside the world",
		},
	}

	v := NewValidator()
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			res, err := v.Validate(tt.from, tt.target, tt.speed, tt.facing)
			if tt.expErr != "" {
				testutil.AssertErrorContains(t, err, tt.expErr)
				testutil.AssertEqual(t, "code", game.CodeOf(err), game.CodeInvalidArgument)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			testutil.AssertEqual(t, "position", res.Position, tt.expPos)
			testutil.AssertEqual(t, "facing", res.Facing, tt.expFacing)
			testutil.AssertEqual(t, "clamped", res.Clamped, tt.expClamped)
		})
	}
}

func TestValidator_StepNeverExceedsLimit(t *testing.T) {
	v := Validator{Bounds: DefaultBounds, Tick: 250 * time.Millisecond}
	from := game.Position{X: 500, Y: 500}

	for _, target := range []game.Position{{X: 0, Y: 0}, {X: 1000, Y: 730}, {X: 512, Y: 1000}} {
		res, err := v.Validate(from, target, 80, game.FacingDown)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d := game.Distance(from, res.Position); d > 20+1e-9 {
			t.Errorf("step to %v covered %.4f, want at most 20", target, d)
		}
	}
}

func TestFacingFor(t *testing.T) {
	tests := map[string]struct {
		dx, dy float64
		exp    game.Facing
	}{
		"right":         {dx: 3, dy: 1, exp: game.FacingRight},
		"left":          {dx: -3, dy: 1, exp: game.FacingLeft},
		"down":          {dx: 1, dy: 3, exp: game.FacingDown},
		"up":            {dx: 1, dy: -3, exp: game.FacingUp},
		"tie goes down": {dx: 2, dy: 2, exp: game.FacingDown},
		"tie goes up":   {dx: -2, dy: -2, exp: game.FacingUp},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, "facing", FacingFor(tt.dx, tt.dy), tt.exp)
		})
	}
}
