package validation

import "strings"

// DefaultEphemeralRoles are background roles exempt from introduction rules
// unless their window leaks a background.
var DefaultEphemeralRoles = []string{"店小二", "伙计", "路人", "侍女", "保安", "司机"}

// NarrativeContext is read-only input to Validate. Callers build one per
// chapter; Validate never mutates it.
type NarrativeContext struct {
	POV                  POVConfig          `json:"pov" yaml:"pov"`
	IntroducedCharacters []Character        `json:"introduced_characters" yaml:"introduced_characters" validate:"dive"`
	EphemeralRoles       []string           `json:"ephemeral_roles_whitelist,omitempty" yaml:"ephemeral_roles_whitelist,omitempty"`
	Outline              OutlineConstraints `json:"outline_constraints" yaml:"outline_constraints"`
}

type POVConfig struct {
	Name            string   `json:"pov_name" yaml:"pov_name"`
	SwitchAllowed   bool     `json:"pov_switch_allowed" yaml:"pov_switch_allowed"`
	AllowedPOVNames []string `json:"allowed_pov_names,omitempty" yaml:"allowed_pov_names,omitempty"`
}

type Character struct {
	Name string `json:"name" yaml:"name" validate:"required"`
}

type OutlineConstraints struct {
	Allowed   []string      `json:"allowed_outline_nodes" yaml:"allowed_outline_nodes"`
	Forbidden []OutlineNode `json:"forbidden_outline_nodes" yaml:"forbidden_outline_nodes" validate:"dive"`
}

type OutlineNode struct {
	ID       string   `json:"id" yaml:"id"`
	Keywords []string `json:"keywords" yaml:"keywords"`
}

func (nc NarrativeContext) introducedNames() []string {
	out := make([]string, 0, len(nc.IntroducedCharacters))
	for _, c := range nc.IntroducedCharacters {
		if name := strings.TrimSpace(c.Name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func (nc NarrativeContext) introducedSet() map[string]struct{} {
	out := map[string]struct{}{}
	for _, n := range nc.introducedNames() {
		out[n] = struct{}{}
	}
	return out
}

func (nc NarrativeContext) ephemeralSet() map[string]struct{} {
	roles := nc.EphemeralRoles
	if len(roles) == 0 {
		roles = DefaultEphemeralRoles
	}
	out := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		out[r] = struct{}{}
	}
	return out
}

func (p POVConfig) allowsPOV(name string) bool {
	if !p.SwitchAllowed {
		return false
	}
	for _, n := range p.AllowedPOVNames {
		if n == name {
			return true
		}
	}
	return false
}
