// Package world is the operation facade over the live world: characters,
// sessions, movement, interactions, queries and update subscriptions.
package world

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/pixil98/go-realm/internal/broadcast"
	"github.com/pixil98/go-realm/internal/game"
	"github.com/pixil98/go-realm/internal/interaction"
	"github.com/pixil98/go-realm/internal/movement"
	"github.com/pixil98/go-realm/internal/persist"
	"github.com/pixil98/go-realm/internal/respawn"
	"github.com/pixil98/go-realm/internal/storage"
)

const (
	// DefaultOnlineLimit caps the who-list.
	DefaultOnlineLimit = 100
	// MaxCharacters is the number of characters an account may own.
	MaxCharacters = 5
)

// DefaultSpawn is where new characters start.
var DefaultSpawn = game.Position{X: 500, Y: 500}

var namePattern = regexp.MustCompile(`^[\p{L}][\p{L} '-]{1,18}[\p{L}]$`)

// Service owns the live stores and the components that work on them.
type Service struct {
	store storage.Store

	entities    *game.EntityStore
	players     *game.PlayerRegistry
	validator   movement.Validator
	resolver    *interaction.Resolver
	respawner   *respawn.Scheduler
	broadcaster *broadcast.Broadcaster
	sync        *persist.Synchronizer
	items       *xsync.MapOf[string, game.ItemDefinition]

	spawn       game.Position
	onlineLimit int
	keepAlive   time.Duration
	messages    interaction.Messages
	now         func() time.Time
	titleCase   cases.Caser
}

// ServiceOpt configures a Service.
type ServiceOpt func(*Service)

func WithBounds(b movement.Bounds) ServiceOpt {
	return func(s *Service) {
		s.validator.Bounds = b
	}
}

func WithMovementTick(d time.Duration) ServiceOpt {
	return func(s *Service) {
		if d > 0 {
			s.validator.Tick = d
		}
	}
}

func WithSpawn(p game.Position) ServiceOpt {
	return func(s *Service) {
		s.spawn = p
	}
}

func WithOnlineLimit(n int) ServiceOpt {
	return func(s *Service) {
		if n > 0 {
			s.onlineLimit = n
		}
	}
}

// WithKeepAlive sets how long an idle update stream waits before a heartbeat.
func WithKeepAlive(d time.Duration) ServiceOpt {
	return func(s *Service) {
		if d > 0 {
			s.keepAlive = d
		}
	}
}

// WithMessages overrides the interaction message templates.
func WithMessages(m interaction.Messages) ServiceOpt {
	return func(s *Service) {
		s.messages = m
	}
}

// WithBroadcaster supplies a preconfigured broadcaster, for a mirror or buffer size.
func WithBroadcaster(b *broadcast.Broadcaster) ServiceOpt {
	return func(s *Service) {
		s.broadcaster = b
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) ServiceOpt {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store storage.Store, opts ...ServiceOpt) *Service {
	s := &Service{
		store:       store,
		validator:   movement.NewValidator(),
		items:       xsync.NewMapOf[string, game.ItemDefinition](),
		spawn:       DefaultSpawn,
		onlineLimit: DefaultOnlineLimit,
		keepAlive:   broadcast.DefaultKeepAlive,
		messages:    interaction.DefaultMessages,
		now:         time.Now,
		titleCase:   cases.Title(language.English),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.broadcaster == nil {
		s.broadcaster = broadcast.NewBroadcaster()
	}

	s.entities = game.NewEntityStore(s.broadcaster)
	s.players = game.NewPlayerRegistry(store, s.broadcaster, game.WithRegistryClock(s.now))
	s.respawner = respawn.NewScheduler(s.entities, respawn.WithClock(s.now))
	s.resolver = interaction.NewResolver(s.entities, s.players, s.respawner,
		interaction.WithMessages(s.messages),
		interaction.WithItemCatalog(s),
		interaction.WithClock(s.now),
	)
	s.sync = persist.NewSynchronizer(store, s.entities, s.players)
	return s
}

// Entities is the live entity store.
func (s *Service) Entities() *game.EntityStore {
	return s.entities
}

// Players is the online player registry.
func (s *Service) Players() *game.PlayerRegistry {
	return s.players
}

func (s *Service) Respawner() *respawn.Scheduler {
	return s.respawner
}

func (s *Service) Broadcaster() *broadcast.Broadcaster {
	return s.broadcaster
}

func (s *Service) Synchronizer() *persist.Synchronizer {
	return s.sync
}

// ItemDefinition implements interaction.ItemCatalog.
func (s *Service) ItemDefinition(id string) (game.ItemDefinition, bool) {
	return s.items.Load(id)
}

// Load fills the live stores from storage. When storage holds no entities and
// seedPath is set, the seed assets are written to storage first. Every entity
// must sit inside the world bounds. Dead monsters are handed to the respawn
// scheduler.
func (s *Service) Load(ctx context.Context, seedPath string) error {
	if n, err := s.store.ResetOnline(ctx); err != nil {
		return err
	} else if n > 0 {
		slog.WarnContext(ctx, "cleared stale online flags", "players", n)
	}

	entities, err := s.store.LoadAllEntities(ctx)
	if err != nil {
		return fmt.Errorf("loading entities: %w", err)
	}
	if err := storage.CheckBounds(entities, s.validator.Bounds.Contains); err != nil {
		return fmt.Errorf("checking stored entities: %w", err)
	}
	defs, err := s.store.LoadItemDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("loading item definitions: %w", err)
	}

	if len(entities) == 0 && seedPath != "" {
		seed, err := storage.LoadSeed(seedPath)
		if err != nil {
			return fmt.Errorf("loading seed: %w", err)
		}
		if err := storage.CheckBounds(seed.Entities, s.validator.Bounds.Contains); err != nil {
			return fmt.Errorf("checking seed: %w", err)
		}
		if err := s.store.SaveItemDefinitions(ctx, seed.Items); err != nil {
			return fmt.Errorf("saving seeded item definitions: %w", err)
		}
		if err := s.store.SaveEntities(ctx, seed.Entities); err != nil {
			return fmt.Errorf("saving seeded entities: %w", err)
		}
		slog.InfoContext(ctx, "world seeded", "path", seedPath, "entities", len(seed.Entities), "items", len(seed.Items))
		entities, defs = seed.Entities, seed.Items
	}

	for _, d := range defs {
		s.items.Store(d.ID, d)
	}
	s.entities.Load(entities)

	dead := 0
	for _, e := range entities {
		if e.Kind == game.KindMonster && !e.Alive {
			s.respawner.Schedule(e.ID)
			dead++
		}
	}

	slog.InfoContext(ctx, "world loaded", "entities", len(entities), "items", len(defs), "respawning", dead)
	return nil
}

// normalizeName trims the name, collapses inner whitespace and title-cases it.
func (s *Service) normalizeName(name string) (string, error) {
	name = strings.Join(strings.Fields(name), " ")
	if !namePattern.MatchString(name) {
		return "", game.InvalidArgumentf("name must be 3 to 20 letters")
	}
	return s.titleCase.String(strings.ToLower(name)), nil
}

// CreateCharacter creates a level 1 character for the account.
func (s *Service) CreateCharacter(ctx context.Context, accountID, name, vocation string) (game.Player, error) {
	if accountID == "" {
		return game.Player{}, game.ErrUnauthenticated
	}
	name, err := s.normalizeName(name)
	if err != nil {
		return game.Player{}, err
	}
	v, err := game.ParseVocation(vocation)
	if err != nil {
		return game.Player{}, err
	}

	owned, err := s.store.ListPlayersByAccount(ctx, accountID)
	if err != nil {
		return game.Player{}, fmt.Errorf("listing characters: %w", err)
	}
	if len(owned) >= MaxCharacters {
		return game.Player{}, game.Conflictf("an account may have at most %d characters", MaxCharacters)
	}

	p := game.NewPlayer(uuid.NewString(), accountID, name, v, s.spawn)
	p.UpdatedAt = s.now()
	p.Version = 1
	if err := s.store.CreatePlayer(ctx, p); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return game.Player{}, game.Conflictf("the name %s is taken", name)
		}
		return game.Player{}, fmt.Errorf("creating character: %w", err)
	}

	slog.InfoContext(ctx, "character created", "account", accountID, "player", p.ID, "name", p.Name, "vocation", p.Vocation)
	return p, nil
}

// ListCharacters returns the account's characters. Online characters are
// returned as they are in the world.
func (s *Service) ListCharacters(ctx context.Context, accountID string) ([]game.Player, error) {
	if accountID == "" {
		return nil, game.ErrUnauthenticated
	}
	players, err := s.store.ListPlayersByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}
	for i, p := range players {
		if live, ok := s.players.Get(p.ID); ok {
			players[i] = live
		}
	}
	return players, nil
}

// Snapshot is the full visible world as seen by one player.
type Snapshot struct {
	Self       game.Player   `json:"self"`
	Players    []game.Player `json:"players"`
	Entities   []game.Entity `json:"entities"`
	ServerTime time.Time     `json:"server_time"`
}

func (s *Service) snapshot(self game.Player) Snapshot {
	return Snapshot{
		Self:       self,
		Players:    s.players.ListOnline(),
		Entities:   s.entities.List(),
		ServerTime: s.now(),
	}
}

// Join brings one of the account's characters into the world. An empty
// playerID picks the account's first character.
func (s *Service) Join(ctx context.Context, accountID, playerID string) (Snapshot, error) {
	if accountID == "" {
		return Snapshot{}, game.ErrUnauthenticated
	}
	if playerID == "" {
		owned, err := s.store.ListPlayersByAccount(ctx, accountID)
		if err != nil {
			return Snapshot{}, fmt.Errorf("listing characters: %w", err)
		}
		if len(owned) == 0 {
			return Snapshot{}, game.NotFoundf("the account has no characters")
		}
		playerID = owned[0].ID
	}

	p, err := s.players.Join(ctx, accountID, playerID)
	if err != nil {
		return Snapshot{}, err
	}
	slog.InfoContext(ctx, "player joined", "account", accountID, "player", p.ID, "name", p.Name)
	return s.snapshot(p), nil
}

// Leave takes the account's character out of the world. It succeeds when no
// character is online.
func (s *Service) Leave(ctx context.Context, accountID string) error {
	p, ok := s.players.ActiveFor(accountID)
	if !ok {
		return nil
	}
	if err := s.players.Leave(ctx, p.ID); err != nil {
		slog.WarnContext(ctx, "leave not saved, retrying on next flush", "player", p.ID, "error", err)
	}
	slog.InfoContext(ctx, "player left", "account", accountID, "player", p.ID)
	return nil
}

func (s *Service) active(accountID string) (game.Player, error) {
	if accountID == "" {
		return game.Player{}, game.ErrUnauthenticated
	}
	p, ok := s.players.ActiveFor(accountID)
	if !ok {
		return game.Player{}, game.NotFoundf("no character in the world, join first")
	}
	return p, nil
}

// MoveResult is an accepted move.
type MoveResult struct {
	Player  game.Player `json:"player"`
	Clamped bool        `json:"clamped"`
}

// Move steps the account's character toward target. The step is validated
// against the character's position at the time it is applied.
func (s *Service) Move(ctx context.Context, accountID string, target game.Position, movementType string) (MoveResult, error) {
	state, err := game.ParseMovementState(movementType)
	if err != nil {
		return MoveResult{}, err
	}
	p, err := s.active(accountID)
	if err != nil {
		return MoveResult{}, err
	}

	var clamped bool
	p, err = s.players.Update(p.ID, func(p *game.Player) error {
		res, err := s.validator.Validate(p.Position, target, p.Speed, p.Facing)
		if err != nil {
			return err
		}
		if res.Position == p.Position && state != game.StateAttack {
			state = game.StateIdle
		}
		p.Position = res.Position
		p.Facing = res.Facing
		p.State = state
		clamped = res.Clamped
		return nil
	})
	if err != nil {
		return MoveResult{}, err
	}
	return MoveResult{Player: p, Clamped: clamped}, nil
}

// UpdateVitals sets the character's current HP and MP, clamped to their maximum.
func (s *Service) UpdateVitals(ctx context.Context, accountID string, hp, mp int) (game.Player, error) {
	p, err := s.active(accountID)
	if err != nil {
		return game.Player{}, err
	}
	return s.players.UpdateVitals(p.ID, hp, mp)
}

// Interact resolves an interaction by the account's character.
func (s *Service) Interact(ctx context.Context, accountID, entityID, verb string, params map[string]string) (interaction.Result, error) {
	p, err := s.active(accountID)
	if err != nil {
		return interaction.Result{}, err
	}
	res := s.resolver.Resolve(ctx, interaction.Request{
		Player:     p,
		EntityID:   entityID,
		Verb:       interaction.Verb(strings.ToLower(verb)),
		Parameters: params,
	})
	return res, nil
}

// State returns the world as seen by the account's character.
func (s *Service) State(ctx context.Context, accountID string) (Snapshot, error) {
	p, err := s.active(accountID)
	if err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(p), nil
}

// VisibleEntities returns every visible entity ordered by id.
func (s *Service) VisibleEntities() []game.Entity {
	return s.entities.List()
}

// OnlinePlayers returns the players flagged online in storage, without the
// account's own character.
func (s *Service) OnlinePlayers(ctx context.Context, accountID string, limit int) ([]game.Player, error) {
	if limit <= 0 || limit > s.onlineLimit {
		limit = s.onlineLimit
	}
	self := ""
	if p, ok := s.players.ActiveFor(accountID); ok {
		self = p.ID
	}
	players, err := s.store.QueryOnlinePlayers(ctx, self, limit)
	if err != nil {
		return nil, fmt.Errorf("querying online players: %w", err)
	}
	return players, nil
}

// Stream sends world update batches to send until ctx is done or send fails.
func (s *Service) Stream(ctx context.Context, send func(broadcast.Batch) error) error {
	return s.broadcaster.Stream(ctx, s.keepAlive, send)
}
