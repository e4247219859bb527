package plugin

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// BackendBuiltin selects the in-process handler backend.
const BackendBuiltin = "builtin"

// RiskTier classifies what a plugin may do.
type RiskTier int

const (
	// Informational plugins only read public or derived data.
	Informational RiskTier = iota
	// DataAccess plugins read private data.
	DataAccess
	// SystemModifying plugins change state outside the process.
	SystemModifying
)

func (t RiskTier) String() string {
	switch t {
	case Informational:
		return "informational"
	case DataAccess:
		return "data_access"
	case SystemModifying:
		return "system_modifying"
	default:
		return fmt.Sprintf("risk_tier(%d)", int(t))
	}
}

// ParseRiskTier accepts the String form, case-insensitively. An empty string
// is Informational.
func ParseRiskTier(s string) (RiskTier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "informational":
		return Informational, nil
	case "data_access", "dataaccess":
		return DataAccess, nil
	case "system_modifying", "systemmodifying":
		return SystemModifying, nil
	}
	return 0, fmt.Errorf("unknown risk tier %q", s)
}

func (t RiskTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *RiskTier) UnmarshalText(text []byte) error {
	v, err := ParseRiskTier(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Parameter describes one named argument of a plugin.
type Parameter struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Required    bool   `json:"required,omitempty" yaml:"required"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// Descriptor is the static description of a callable plugin.
type Descriptor struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description" yaml:"description"`
	Parameters  []Parameter `json:"parameters,omitempty" yaml:"parameters"`
	RiskTier    RiskTier    `json:"riskTier" yaml:"risk_tier"`
	Backend     string      `json:"backend" yaml:"backend"`
}

var (
	nameRE     = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	paramTypes = map[string]bool{
		"string": true, "number": true, "integer": true,
		"boolean": true, "object": true, "array": true,
	}
)

// Validate checks the descriptor for structural errors.
func (d Descriptor) Validate() error {
	var errs []error
	if !nameRE.MatchString(d.Name) {
		errs = append(errs, fmt.Errorf("name %q must match %s", d.Name, nameRE))
	}
	if d.Backend == "" {
		errs = append(errs, errors.New("backend is required"))
	}
	seen := make(map[string]bool, len(d.Parameters))
	for i, p := range d.Parameters {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("parameters[%d]: name is required", i))
		} else if seen[p.Name] {
			errs = append(errs, fmt.Errorf("parameters[%d]: duplicate name %q", i, p.Name))
		}
		seen[p.Name] = true
		if !paramTypes[p.Type] {
			errs = append(errs, fmt.Errorf("parameters[%d]: unsupported type %q", i, p.Type))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("plugin %q: %w", d.Name, errors.Join(errs...))
	}
	return nil
}

// Schema returns the JSON Schema of the descriptor's argument object. The
// same document is advertised to the model and used to validate arguments.
func (d Descriptor) Schema() map[string]any {
	props := make(map[string]any, len(d.Parameters))
	required := []string{}
	for _, p := range d.Parameters {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}
