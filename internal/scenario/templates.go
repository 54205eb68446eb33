package scenario

import (
	"fmt"

	"TaskForce/internal/game"
)

// Template instantiates one of the common task patterns. Fields not used by
// a kind are ignored.
type Template struct {
	Kind        string    `yaml:"kind"`
	ID          string    `yaml:"id"`
	Faction     string    `yaml:"faction"`
	Title       string    `yaml:"title,omitempty"`
	Description string    `yaml:"description,omitempty"`
	Category    string    `yaml:"category,omitempty"`
	Pos         []float64 `yaml:"pos"`
	Radius      float64   `yaml:"radius,omitempty"`
	Seconds     float64   `yaml:"seconds,omitempty"`
	Label       string    `yaml:"label,omitempty"`
	Target      string    `yaml:"target_faction,omitempty"`
	Tag         string    `yaml:"tag,omitempty"`
}

type expander func(t Template) []any

var templates = map[string]expander{
	"kill_hvt":    expandKillHVT,
	"hold_action": expandHoldAction,
	"hack_laptop": expandHackLaptop,
	"extraction":  expandExtraction,
	"clear_area":  expandClearArea,
}

// Expand returns the setup actions for t in mission-file form.
func (t Template) Expand() ([]any, error) {
	fn, ok := templates[t.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, t.Kind)
	}
	if t.ID == "" || len(t.Pos) < 2 {
		return nil, fmt.Errorf("%w: template %s needs id and pos", ErrInvalidMission, t.Kind)
	}
	return fn(t), nil
}

func (t Template) pos() []any { return []any{t.Pos[0], t.Pos[1]} }

func (t Template) radiusOr(def float64) float64 {
	if t.Radius > 0 {
		return t.Radius
	}
	return def
}

func (t Template) createTask(defTitle, category string) []any {
	title := t.Title
	if title == "" {
		title = defTitle
	}
	if t.Category != "" {
		category = t.Category
	}
	return []any{"create_task", map[string]any{
		"faction":     t.Faction,
		"id":          t.ID,
		"title":       title,
		"description": t.Description,
		"position":    t.pos(),
		"category":    category,
	}}
}

func (t Template) assigned() []any { return []any{"task_state", t.ID, "ASSIGNED"} }

func (t Template) succeed() []any { return []any{"update_task_state", t.ID, "SUCCEEDED"} }

// worldArea covers the whole map.
func worldArea() map[string]any {
	return map[string]any{
		"center": []any{game.WorldW / 2, game.WorldH / 2},
		"width":  game.WorldW,
		"height": game.WorldH,
	}
}

// kill_hvt spawns the target as a one-man patrol and completes once no
// living entity carries its tag.
func expandKillHVT(t Template) []any {
	tag := t.Tag
	if tag == "" {
		tag = "hvt_" + t.ID
	}
	target := t.Target
	if target == "" {
		target = "EAST"
	}
	return []any{
		t.createTask("Eliminate HVT", "kill"),
		[]any{"spawn_patrol", t.ID + "_hvt", target, t.pos(), 1, "", t.radiusOr(15), 1.0, tag},
		[]any{"create_trigger", map[string]any{
			"id":        t.ID + "_done",
			"area":      worldArea(),
			"faction":   t.Faction,
			"presence":  "PRESENT",
			"condition": []any{"all", t.assigned(), []any{"tag_absent", tag}},
			"action":    t.succeed(),
		}},
	}
}

func (t Template) holdLabel(def string) string {
	if t.Label != "" {
		return t.Label
	}
	return def
}

func expandHoldAction(t Template) []any {
	return []any{
		t.createTask("Interact", "interact"),
		[]any{"add_hold_action", t.ID, t.holdLabel("Interact"), t.pos(), t.radiusOr(game.DefaultHoldRadius),
			t.Seconds, t.succeed(), t.Faction},
	}
}

// hack_laptop is a hold action that also walks hack:<id> through
// idle and complete so clients can swap the screen state.
func expandHackLaptop(t Template) []any {
	key := "hack:" + t.ID
	return []any{
		t.createTask("Hack System", "hack"),
		[]any{"set_variable", key, "idle"},
		[]any{"add_hold_action", t.ID, t.holdLabel("Hack System"), t.pos(), t.radiusOr(game.DefaultHoldRadius),
			t.Seconds, []any{"sequence", []any{"set_variable", key, "complete"}, t.succeed()}, t.Faction},
	}
}

func expandExtraction(t Template) []any {
	return []any{
		t.createTask("Extract", "extract"),
		[]any{"create_lz", t.ID, t.pos(), t.Faction},
		[]any{"create_trigger", map[string]any{
			"id":        t.ID + "_done",
			"area":      map[string]any{"center": t.pos(), "radius": t.radiusOr(50)},
			"faction":   t.Faction,
			"presence":  "PRESENT",
			"condition": t.assigned(),
			"action":    t.succeed(),
		}},
	}
}

func expandClearArea(t Template) []any {
	enemy := t.Target
	if enemy == "" {
		enemy = "EAST"
	}
	return []any{
		t.createTask("Clear Area", "clear"),
		[]any{"create_trigger", map[string]any{
			"id":        t.ID + "_done",
			"area":      map[string]any{"center": t.pos(), "radius": t.radiusOr(150)},
			"faction":   enemy,
			"presence":  "NOT_PRESENT",
			"condition": t.assigned(),
			"action":    t.succeed(),
		}},
	}
}
