package storage

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"
	"github.com/pixil98/go-errors"

	"github.com/pixil98/go-realm/internal/game"
)

// seedNamespace derives stable entity ids from seed asset ids, so reseeding
// an empty database gives every entity the id it had before.
var seedNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/pixil98/go-realm/seed"))

// ItemSeed is an item definition asset.
type ItemSeed struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Sprite      string `json:"sprite"`
}

func (s *ItemSeed) Validate() error {
	if s == nil {
		return fmt.Errorf("spec must be set")
	}
	if s.Name == "" {
		return fmt.Errorf("name must be set")
	}
	return nil
}

// EntitySeed is an entity asset. Count places that many copies at the same
// spawn point.
type EntitySeed struct {
	Kind    game.Kind     `json:"kind"`
	Name    string        `json:"name"`
	Spawn   game.Position `json:"spawn"`
	Count   int           `json:"count"`
	HP      int           `json:"hp"`
	MP      int           `json:"mp"`
	Attack  int           `json:"attack"`
	Defense int           `json:"defense"`
	Speed   float64       `json:"speed"`

	RespawnSeconds int               `json:"respawn_delay_seconds"`
	Properties     map[string]string `json:"properties"`
	// Item names the item seed an item entity is an instance of.
	Item string `json:"item"`
}

func (s *EntitySeed) Validate() error {
	if s == nil {
		return fmt.Errorf("spec must be set")
	}

	el := errors.NewErrorList()

	if !s.Kind.Valid() {
		el.Add(fmt.Errorf("kind %q is not one of npc, monster, item", s.Kind))
	}
	if s.Name == "" {
		el.Add(fmt.Errorf("name must be set"))
	}
	if s.Count < 0 {
		el.Add(fmt.Errorf("count must not be negative"))
	}
	if s.HP < 0 || s.MP < 0 {
		el.Add(fmt.Errorf("hp and mp must not be negative"))
	}
	if s.Kind == game.KindMonster && s.HP == 0 {
		el.Add(fmt.Errorf("monsters must have hp"))
	}
	if s.Kind == game.KindItem && s.Item == "" {
		el.Add(fmt.Errorf("item entities must reference an item"))
	}
	if s.RespawnSeconds < 0 {
		el.Add(fmt.Errorf("respawn delay must not be negative"))
	}
	// The world starts at the origin. The far edge depends on configuration
	// and is checked on load.
	if s.Spawn.X < 0 || s.Spawn.Y < 0 {
		el.Add(fmt.Errorf("spawn must not be negative"))
	}

	return el.Err()
}

func (s *EntitySeed) entities(seedID string) []game.Entity {
	count := max(s.Count, 1)
	out := make([]game.Entity, 0, count)
	for i := range count {
		name := seedID
		if i > 0 {
			name = fmt.Sprintf("%s-%d", seedID, i)
		}
		e := game.Entity{
			ID:             uuid.NewSHA1(seedNamespace, []byte("entity/"+name)).String(),
			Kind:           s.Kind,
			Name:           s.Name,
			Position:       s.Spawn,
			Spawn:          s.Spawn,
			HP:             s.HP,
			MaxHP:          s.HP,
			MP:             s.MP,
			MaxMP:          s.MP,
			Attack:         s.Attack,
			Defense:        s.Defense,
			Speed:          s.Speed,
			State:          game.StateIdle,
			Facing:         game.FacingDown,
			Properties:     maps.Clone(s.Properties),
			Alive:          true,
			RespawnSeconds: s.RespawnSeconds,
			Version:        1,
		}
		if s.Kind == game.KindItem {
			e.ItemDefID = itemDefID(s.Item)
		}
		out = append(out, e)
	}
	return out
}

func itemDefID(seedID string) string {
	return uuid.NewSHA1(seedNamespace, []byte("item/"+seedID)).String()
}

// Seed is the initial content of an empty world.
type Seed struct {
	Entities []game.Entity
	Items    []game.ItemDefinition
}

// LoadSeed reads item assets from path/items and entity assets from
// path/entities. A missing subdirectory contributes nothing.
func LoadSeed(path string) (Seed, error) {
	items, err := loadDir[*ItemSeed](filepath.Join(path, "items"))
	if err != nil {
		return Seed{}, fmt.Errorf("loading item seeds: %w", err)
	}
	entities, err := loadDir[*EntitySeed](filepath.Join(path, "entities"))
	if err != nil {
		return Seed{}, fmt.Errorf("loading entity seeds: %w", err)
	}

	var seed Seed
	el := errors.NewErrorList()

	for _, id := range slices.Sorted(maps.Keys(items)) {
		it := items[id]
		seed.Items = append(seed.Items, game.ItemDefinition{
			ID:          itemDefID(id),
			Name:        it.Name,
			Description: it.Description,
			Sprite:      it.Sprite,
		})
	}
	for _, id := range slices.Sorted(maps.Keys(entities)) {
		es := entities[id]
		if es.Kind == game.KindItem {
			if _, ok := items[es.Item]; !ok {
				el.Add(fmt.Errorf("entity %s: item %q not found", id, es.Item))
				continue
			}
		}
		seed.Entities = append(seed.Entities, es.entities(id)...)
	}

	if err := el.Err(); err != nil {
		return Seed{}, err
	}
	return seed, nil
}

func loadDir[T ValidatingSpec](path string) (map[string]T, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return map[string]T{}, nil
	}
	fs, err := NewFileStore[T](path)
	if err != nil {
		return nil, err
	}
	return fs.GetAll(), nil
}

// CheckBounds reports every entity whose position or spawn point fails
// contains.
func CheckBounds(entities []game.Entity, contains func(game.Position) bool) error {
	el := errors.NewErrorList()
	for _, e := range entities {
		if !contains(e.Position) {
			el.Add(fmt.Errorf("entity %s (%s): position (%.1f, %.1f) is outside the world", e.ID, e.Name, e.Position.X, e.Position.Y))
		}
		if !contains(e.Spawn) {
			el.Add(fmt.Errorf("entity %s (%s): spawn (%.1f, %.1f) is outside the world", e.ID, e.Name, e.Spawn.X, e.Spawn.Y))
		}
	}
	return el.Err()
}
