// Package interaction resolves player interactions with world entities.
package interaction

import (
	"context"
	"log/slog"
	"time"

	"github.com/pixil98/go-realm/internal/combat"
	"github.com/pixil98/go-realm/internal/game"
)

// Verb names an interaction.
type Verb string

const (
	VerbAttack Verb = "attack"
	VerbTalk   Verb = "talk"
	VerbPickup Verb = "pickup"
)

// PickupRange is the furthest a player may stand from an item to pick it up.
const PickupRange = 32.0

// Entities is the entity store as seen by the resolver.
type Entities interface {
	Get(id string) (game.Entity, error)
	Put(e game.Entity) error
	Update(id string, fn func(*game.Entity) error) (game.Entity, error)
	Take(id string, fn func(*game.Entity) error) (game.Entity, error)
}

// Players is the player registry as seen by the resolver.
type Players interface {
	Update(id string, fn func(*game.Player) error) (game.Player, error)
}

// DeathHandler is told about every monster that dies.
type DeathHandler interface {
	Schedule(entityID string)
}

// ItemCatalog looks up item definitions.
type ItemCatalog interface {
	ItemDefinition(id string) (game.ItemDefinition, bool)
}

// Request is one interaction by an online player.
type Request struct {
	Player     game.Player
	EntityID   string
	Verb       Verb
	Parameters map[string]string
}

// Result is the uniform outcome of every verb.
type Result struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Code    game.Code `json:"code,omitempty"`
	// EntityUpdated is set when the target changed and will be broadcast.
	EntityUpdated bool           `json:"entity_updated"`
	Rewards       map[string]int `json:"rewards,omitempty"`
}

func failure(err error) Result {
	return Result{Success: false, Message: err.Error(), Code: game.CodeOf(err)}
}

// Resolver dispatches interactions by verb. It holds no state of its own;
// every change goes through the stores' atomic operations.
type Resolver struct {
	entities Entities
	players  Players
	deaths   DeathHandler
	items    ItemCatalog
	msgs     Messages
	now      func() time.Time
}

// ResolverOpt configures a Resolver.
type ResolverOpt func(*Resolver)

// WithMessages overrides the message templates.
func WithMessages(m Messages) ResolverOpt {
	return func(r *Resolver) {
		r.msgs = m.withDefaults()
	}
}

// WithItemCatalog names picked up items after their definitions.
func WithItemCatalog(c ItemCatalog) ResolverOpt {
	return func(r *Resolver) {
		r.items = c
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) ResolverOpt {
	return func(r *Resolver) {
		r.now = now
	}
}

// NewResolver creates a resolver. deaths may be nil.
func NewResolver(entities Entities, players Players, deaths DeathHandler, opts ...ResolverOpt) *Resolver {
	r := &Resolver{
		entities: entities,
		players:  players,
		deaths:   deaths,
		msgs:     DefaultMessages,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve runs the interaction. Declined interactions come back as a failed
// Result, never as a panic or error.
func (r *Resolver) Resolve(ctx context.Context, req Request) Result {
	if req.EntityID == "" {
		return failure(game.InvalidArgumentf("entity id is required"))
	}
	switch req.Verb {
	case VerbAttack:
		return r.attack(ctx, req)
	case VerbTalk:
		return r.talk(ctx, req)
	case VerbPickup:
		return r.pickup(ctx, req)
	default:
		return failure(game.InvalidArgumentf("unknown interaction %q", req.Verb))
	}
}

func (r *Resolver) attack(ctx context.Context, req Request) Result {
	attacker := combat.PlayerCombatant{Player: req.Player}

	var blow combat.Blow
	target, err := r.entities.Update(req.EntityID, func(e *game.Entity) error {
		var err error
		blow, err = combat.Strike(attacker, e, r.now())
		return err
	})
	if err != nil {
		return failure(err)
	}

	data := MessageData{
		Actor:  req.Player.Name,
		Target: target.Name,
		Verb:   combat.DamageVerb(blow.Damage),
		Damage: blow.Damage,
		HPLeft: blow.HPLeft,

		HitsLeft: combat.HitsToKill(blow.HPLeft, attacker.AttackPower(), target.Defense),
	}
	res := Result{Success: true, EntityUpdated: true, Rewards: map[string]int{}}

	if !blow.Killed {
		res.Message = r.render(ctx, r.msgs.Attack, data)
		return res
	}

	if r.deaths != nil {
		r.deaths.Schedule(target.ID)
	}
	res.Rewards["experience"] = blow.Experience
	data.Experience = blow.Experience

	var gained int
	p, err := r.players.Update(req.Player.ID, func(p *game.Player) error {
		gained = p.GainExperience(blow.Experience)
		return nil
	})
	if err != nil {
		slog.WarnContext(ctx, "crediting kill experience", "player", req.Player.ID, "entity", target.ID, "error", err)
	} else {
		res.Rewards["next_level"] = game.ExpToNextLevel(p.Level, p.Experience)
		if gained > 0 {
			res.Rewards["level"] = p.Level
			data.Level = p.Level
		}
	}

	slog.InfoContext(ctx, "monster defeated", "player", req.Player.ID, "entity", target.ID, "experience", blow.Experience)
	res.Message = r.render(ctx, r.msgs.Kill, data)
	return res
}

func (r *Resolver) talk(ctx context.Context, req Request) Result {
	npc, err := r.entities.Get(req.EntityID)
	if err != nil {
		return failure(err)
	}
	if npc.Kind != game.KindNPC {
		return failure(game.PermissionDeniedf("you cannot talk to %s", npc.Name))
	}

	msg := npc.Property("dialog", "")
	if msg == "" {
		msg = r.render(ctx, r.msgs.Greeting, MessageData{Actor: req.Player.Name, Target: npc.Name})
	}
	return Result{Success: true, Message: msg}
}

func (r *Resolver) pickup(ctx context.Context, req Request) Result {
	item, err := r.entities.Take(req.EntityID, func(e *game.Entity) error {
		if e.Kind != game.KindItem {
			return game.PermissionDeniedf("you cannot pick up %s", e.Name)
		}
		if e.OwnerID != "" {
			return game.Conflictf("%s already belongs to someone", e.Name)
		}
		if d := game.Distance(req.Player.Position, e.Position); d > PickupRange {
			return game.InvalidArgumentf("%s is too far away (%.0f > %.0f)", e.Name, d, PickupRange)
		}
		e.OwnerID = req.Player.ID
		return nil
	})
	if err != nil {
		return failure(err)
	}

	_, err = r.players.Update(req.Player.ID, func(p *game.Player) error {
		if !p.Owns(item.ID) {
			p.Inventory = append(p.Inventory, item.ID)
		}
		return nil
	})
	if err != nil {
		// The player left between the claim and the inventory write; put the item back.
		item.OwnerID = ""
		if putErr := r.entities.Put(item); putErr != nil {
			slog.ErrorContext(ctx, "restoring item after failed pickup", "entity", item.ID, "error", putErr)
		}
		return failure(err)
	}

	data := MessageData{Actor: req.Player.Name, Target: item.Name}
	if r.items != nil && item.ItemDefID != "" {
		if def, ok := r.items.ItemDefinition(item.ItemDefID); ok {
			data.Item = def.Name
		}
	}
	return Result{
		Success:       true,
		EntityUpdated: true,
		Message:       r.render(ctx, r.msgs.Pickup, data),
		Rewards:       map[string]int{"items": 1},
	}
}

func (r *Resolver) render(ctx context.Context, tmpl string, data MessageData) string {
	msg, err := ExpandTemplate(tmpl, data)
	if err != nil {
		slog.WarnContext(ctx, "rendering interaction message", "error", err)
		return tmpl
	}
	return msg
}
