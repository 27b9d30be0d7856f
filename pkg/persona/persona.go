// Package persona maps role identifiers to the instruction text that shapes
// a character's voice. The set is fixed at startup; lookups never fail,
// unknown roles fall back to the narrator.
package persona

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultRole is the persona used when a request names no role, or names
// one the registry does not know.
const DefaultRole = "narrator"

// Persona pairs a role identifier with its instruction text.
type Persona struct {
	ID          string `yaml:"id"`
	Instruction string `yaml:"instruction"`
}

// Registry resolves role identifiers to personas. Read-only after
// construction, safe for concurrent use without locking.
type Registry struct {
	personas map[string]Persona
}

// builtins are the stock cast of the mystery scenario.
var builtins = []Persona{
	{
		ID:          "narrator",
		Instruction: "你是一个悬疑故事的叙事引导者。你的职责是描述场景、引入角色和推进剧情。说话风格沉稳且富有悬念。你每次发言结束后，要询问玩家的行动或选择。",
	},
	{
		ID:          "characterA",
		Instruction: "你叫李明，是故事中的侦探。性格沉着冷静，逻辑严密，专注于寻找线索。说话时保持理性。",
	},
	{
		ID:          "characterB",
		Instruction: "你叫王芳，是被害人的妹妹。性格冲动易怒，一心想为哥哥复仇。说话时语气激烈。",
	},
}

// NewRegistry builds a registry holding the built-in cast.
func NewRegistry() *Registry {
	r := &Registry{personas: make(map[string]Persona, len(builtins))}
	for _, p := range builtins {
		r.personas[p.ID] = p
	}
	return r
}

// NewRegistryFromFile builds a registry from the built-in cast plus the
// personas in a YAML file. File entries override built-ins with the same ID.
func NewRegistryFromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}

	var extra []Persona
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("parse persona file: %w", err)
	}

	r := NewRegistry()
	for _, p := range extra {
		if p.ID == "" {
			return nil, fmt.Errorf("persona with empty id in %s", path)
		}
		if p.Instruction == "" {
			return nil, fmt.Errorf("persona %q has no instruction", p.ID)
		}
		r.personas[p.ID] = p
	}

	if _, ok := r.personas[DefaultRole]; !ok {
		return nil, fmt.Errorf("persona file must not remove the %q persona", DefaultRole)
	}
	return r, nil
}

// Lookup returns the instruction text for a role. Empty or unknown roles
// resolve to the default persona.
func (r *Registry) Lookup(roleID string) string {
	p, _ := r.Resolve(roleID)
	return p.Instruction
}

// Resolve returns the persona for a role and whether the role was known.
// Unknown roles return the default persona with ok == false.
func (r *Registry) Resolve(roleID string) (Persona, bool) {
	if p, ok := r.personas[roleID]; ok {
		return p, true
	}
	return r.personas[DefaultRole], false
}

// Roles lists the registered role identifiers.
func (r *Registry) Roles() []string {
	ids := make([]string, 0, len(r.personas))
	for id := range r.personas {
		ids = append(ids, id)
	}
	return ids
}
