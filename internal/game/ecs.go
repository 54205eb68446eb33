package game

import "TaskForce/internal/core"

type EntityID int64

type ComponentKey string

// World is the session entity table: players, patrols, caches, smoke and
// anything else a trigger area can count.
type World struct {
	nextEntity EntityID
	components map[ComponentKey]map[EntityID]any
}

type Transform struct {
	Pos core.Vec2
	Vel core.Vec2
}

type Movement struct {
	MaxSpeed float64
}

type FactionComponent struct {
	Faction core.Faction
}

type TagComponent struct {
	Tags map[string]bool
}

type DestroyedComponent struct {
	At float64
}

// GroupComponent links an entity to the spawn request that created it.
type GroupComponent struct {
	ID   string
	Kind string
}

type PatrolComponent struct {
	Waypoints []core.Vec2
	Index     int
	Loop      bool
}

type OwnerComponent struct {
	PlayerID string
}

const (
	CompTransform ComponentKey = "transform"
	CompMovement  ComponentKey = "movement"
	CompFaction   ComponentKey = "faction"
	CompTags      ComponentKey = "tags"
	CompDestroyed ComponentKey = "destroyed"
	CompGroup     ComponentKey = "group"
	CompPatrol    ComponentKey = "patrol"
	CompOwner     ComponentKey = "owner"
)

func NewWorld() *World {
	return &World{
		nextEntity: 0,
		components: make(map[ComponentKey]map[EntityID]any),
	}
}

func (w *World) Transform(id EntityID) *Transform {
	if v, ok := w.GetComponent(id, CompTransform); ok {
		if t, ok := v.(*Transform); ok {
			return t
		}
	}
	return nil
}

func (w *World) Movement(id EntityID) *Movement {
	if v, ok := w.GetComponent(id, CompMovement); ok {
		if t, ok := v.(*Movement); ok {
			return t
		}
	}
	return nil
}

func (w *World) Faction(id EntityID) *FactionComponent {
	if v, ok := w.GetComponent(id, CompFaction); ok {
		if t, ok := v.(*FactionComponent); ok {
			return t
		}
	}
	return nil
}

func (w *World) Tags(id EntityID) *TagComponent {
	if v, ok := w.GetComponent(id, CompTags); ok {
		if t, ok := v.(*TagComponent); ok {
			return t
		}
	}
	return nil
}

func (w *World) DestroyedData(id EntityID) *DestroyedComponent {
	if v, ok := w.GetComponent(id, CompDestroyed); ok {
		if t, ok := v.(*DestroyedComponent); ok {
			return t
		}
	}
	return nil
}

func (w *World) Group(id EntityID) *GroupComponent {
	if v, ok := w.GetComponent(id, CompGroup); ok {
		if t, ok := v.(*GroupComponent); ok {
			return t
		}
	}
	return nil
}

func (w *World) Patrol(id EntityID) *PatrolComponent {
	if v, ok := w.GetComponent(id, CompPatrol); ok {
		if t, ok := v.(*PatrolComponent); ok {
			return t
		}
	}
	return nil
}

func (w *World) Owner(id EntityID) *OwnerComponent {
	if v, ok := w.GetComponent(id, CompOwner); ok {
		if t, ok := v.(*OwnerComponent); ok {
			return t
		}
	}
	return nil
}

func (w *World) NewEntity() EntityID {
	w.nextEntity++
	return w.nextEntity
}

func (w *World) SetComponent(id EntityID, key ComponentKey, value any) {
	store, ok := w.components[key]
	if !ok {
		store = make(map[EntityID]any)
		w.components[key] = store
	}
	store[id] = value
}

func (w *World) GetComponent(id EntityID, key ComponentKey) (any, bool) {
	if store, ok := w.components[key]; ok {
		val, ok := store[id]
		return val, ok
	}
	return nil, false
}

func (w *World) RemoveEntity(id EntityID) {
	for _, store := range w.components {
		delete(store, id)
	}
}

func (w *World) ForEach(required []ComponentKey, fn func(EntityID)) {
	if len(required) == 0 {
		return
	}
	first := w.components[required[0]]
	if first == nil {
		return
	}
	for id := range first {
		match := true
		for _, key := range required[1:] {
			if store := w.components[key]; store == nil {
				match = false
				break
			} else if _, ok := store[id]; !ok {
				match = false
				break
			}
		}
		if match {
			fn(id)
		}
	}
}

func (w *World) Exists(id EntityID) bool {
	for _, store := range w.components {
		if _, ok := store[id]; ok {
			return true
		}
	}
	return false
}

// Spawn creates a positioned entity with an optional faction and tags.
func (w *World) Spawn(pos core.Vec2, faction core.Faction, tags ...string) EntityID {
	id := w.NewEntity()
	w.SetComponent(id, CompTransform, &Transform{Pos: pos})
	if faction != "" {
		w.SetComponent(id, CompFaction, &FactionComponent{Faction: faction})
	}
	if len(tags) > 0 {
		set := make(map[string]bool, len(tags))
		for _, t := range tags {
			set[t] = true
		}
		w.SetComponent(id, CompTags, &TagComponent{Tags: set})
	}
	return id
}

// Destroy marks an entity destroyed. Destroyed entities stay in the table
// for kill counting but no longer count as present anywhere.
func (w *World) Destroy(id EntityID, now float64) bool {
	if !w.Exists(id) || w.DestroyedData(id) != nil {
		return false
	}
	w.SetComponent(id, CompDestroyed, &DestroyedComponent{At: now})
	if tr := w.Transform(id); tr != nil {
		tr.Vel = core.Vec2{}
	}
	return true
}

// Alive reports whether id exists and is not destroyed.
func (w *World) Alive(id EntityID) bool {
	return w.Exists(id) && w.DestroyedData(id) == nil
}

// Occupants counts living entities of faction inside area. It is the
// presence source for trigger evaluation.
func (w *World) Occupants(area core.Area, faction core.Faction) int {
	n := 0
	w.ForEach([]ComponentKey{CompFaction, CompTransform}, func(id EntityID) {
		if w.DestroyedData(id) != nil {
			return
		}
		if !faction.Matches(w.Faction(id).Faction) {
			return
		}
		if area.Contains(w.Transform(id).Pos) {
			n++
		}
	})
	return n
}

// Tagged returns the entities carrying tag, including destroyed ones.
func (w *World) Tagged(tag string) []EntityID {
	var out []EntityID
	w.ForEach([]ComponentKey{CompTags}, func(id EntityID) {
		if tags := w.Tags(id); tags != nil && tags.Tags[tag] {
			out = append(out, id)
		}
	})
	return out
}

// CountTagged returns how many entities carry tag and how many of those
// are destroyed.
func (w *World) CountTagged(tag string) (total, destroyed int) {
	for _, id := range w.Tagged(tag) {
		total++
		if w.DestroyedData(id) != nil {
			destroyed++
		}
	}
	return total, destroyed
}

// GroupMembers returns the entities created by spawn request group.
func (w *World) GroupMembers(group string) []EntityID {
	var out []EntityID
	w.ForEach([]ComponentKey{CompGroup}, func(id EntityID) {
		if g := w.Group(id); g != nil && g.ID == group {
			out = append(out, id)
		}
	})
	return out
}

// Len returns the number of entities with a transform.
func (w *World) Len() int {
	return len(w.components[CompTransform])
}
