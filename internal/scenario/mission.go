// Package scenario loads mission definitions from YAML and installs them
// into a game session.
package scenario

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidMission  = errors.New("scenario: invalid mission")
	ErrUnknownTemplate = errors.New("scenario: unknown template")
)

//go:embed schema.json
var schemaJSON string

//go:embed default.yaml
var defaultMission []byte

// Mission is a decoded mission file.
type Mission struct {
	Meta      Meta                 `yaml:"mission"`
	Variables []Variable           `yaml:"variables,omitempty"`
	Markers   []Marker             `yaml:"markers,omitempty"`
	Respawns  map[string][]float64 `yaml:"respawns,omitempty"`
	Tasks     []map[string]any     `yaml:"tasks,omitempty"`
	Triggers  []map[string]any     `yaml:"triggers,omitempty"`
	Templates []Template           `yaml:"templates,omitempty"`
	Setup     []any                `yaml:"setup,omitempty"`
	Phases    []PhaseSpec          `yaml:"phases"`
}

type Meta struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// Variable is an initial session variable.
type Variable struct {
	Key       string `yaml:"key"`
	Value     any    `yaml:"value"`
	Replicate *bool  `yaml:"replicate,omitempty"`
}

// Replicated defaults to true.
func (v Variable) Replicated() bool { return v.Replicate == nil || *v.Replicate }

type Marker struct {
	ID      string    `yaml:"id"`
	Pos     []float64 `yaml:"pos"`
	Faction string    `yaml:"faction,omitempty"`
}

// PhaseSpec is one phase as written in the mission file. Action fields
// accept any form actions.ParseActions understands.
type PhaseSpec struct {
	ID         string     `yaml:"id"`
	Order      int        `yaml:"order"`
	Label      string     `yaml:"label,omitempty"`
	Requires   []string   `yaml:"requires,omitempty"`
	OnEnter    any        `yaml:"on_enter,omitempty"`
	OnComplete any        `yaml:"on_complete,omitempty"`
	OnFailure  any        `yaml:"on_failure,omitempty"`
	Next       []EdgeSpec `yaml:"next,omitempty"`
	FailTo     string     `yaml:"fail_to,omitempty"`
}

// EdgeSpec is either a bare phase id or {to, when}.
type EdgeSpec struct {
	To   string `yaml:"to"`
	When any    `yaml:"when,omitempty"`
}

func (e *EdgeSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.To = node.Value
		return nil
	}
	type plain EdgeSpec
	return node.Decode((*plain)(e))
}

// Load reads and validates a mission file.
func Load(path string) (*Mission, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mission: %w", err)
	}
	m, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Default returns the built-in sample mission.
func Default() *Mission {
	m, err := Parse(defaultMission)
	if err != nil {
		panic(fmt.Sprintf("scenario: embedded mission is invalid: %v", err))
	}
	return m
}

// Parse validates data against the mission schema and decodes it.
func Parse(data []byte) (*Mission, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}
	var m Mission
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMission, err)
	}
	if err := m.check(); err != nil {
		return nil, err
	}
	return &m, nil
}

var missionSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("mission.schema.json", strings.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return c.Compile("mission.schema.json")
})

// validateSchema round-trips the YAML document through JSON so the validator
// sees the same number and map types it would for a JSON file.
func validateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMission, err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMission, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMission, err)
	}
	s, err := missionSchema()
	if err != nil {
		return fmt.Errorf("compile mission schema: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMission, err)
	}
	return nil
}

func (m *Mission) check() error {
	seen := map[string]bool{}
	for _, p := range m.Phases {
		if seen[p.ID] {
			return fmt.Errorf("%w: duplicate phase %q", ErrInvalidMission, p.ID)
		}
		seen[p.ID] = true
	}
	for _, t := range m.Templates {
		if _, ok := templates[t.Kind]; !ok {
			return fmt.Errorf("%w: %q (known: %s)", ErrUnknownTemplate, t.Kind, strings.Join(TemplateKinds(), ", "))
		}
	}
	return nil
}

// TemplateKinds lists the registered common-task templates.
func TemplateKinds() []string {
	out := make([]string, 0, len(templates))
	for k := range templates {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
