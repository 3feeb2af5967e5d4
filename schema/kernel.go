package schema

import (
	"encoding/json"
	"fmt"
	"sort"
)

// KernelInfo is a read-only view of a registered kernel.
type KernelInfo struct {
	ID        KernelID            `json:"id"`
	Name      string              `json:"name"`
	Language  string              `json:"language"`
	Status    KernelStatus        `json:"status"`
	Variables map[string]Variable `json:"variables,omitempty"`
	Current   bool                `json:"current"`
}

// Variable is the last known value of a name produced by a successful run.
type Variable struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value any    `json:"value"`
	Repr  string `json:"repr"`
}

// DataSource is injected into every execution context.
type DataSource struct {
	Name string `json:"name" mapstructure:"name" yaml:"name"`
	Kind string `json:"kind" mapstructure:"kind" yaml:"kind"`
	DSN  string `json:"dsn" mapstructure:"dsn" yaml:"dsn"`
}

// NewVariable builds a variable from a kernel value. Values are normalized to
// their JSON form so snapshots can cross process and persistence boundaries.
func NewVariable(name string, value any) Variable {
	normalized := NormalizeValue(value)
	return Variable{
		Name:  name,
		Type:  valueType(normalized),
		Value: normalized,
		Repr:  Repr(normalized),
	}
}

// NormalizeValue converts v to the shape produced by decoding JSON. Values
// that cannot be encoded are replaced by their fmt representation.
func NormalizeValue(v any) any {
	switch v.(type) {
	case nil, string, bool, float64:
		return v
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return out
}

// Repr renders a normalized value for display.
func Repr(v any) string {
	switch value := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", value)
	case float64, bool:
		return fmt.Sprintf("%v", value)
	default:
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return string(raw)
	}
}

func valueType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case float64:
		return "number"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// VariableValues returns the raw values keyed by name.
func VariableValues(vars map[string]Variable) map[string]any {
	out := make(map[string]any, len(vars))
	for name, variable := range vars {
		out[name] = variable.Value
	}
	return out
}

// VariableNames returns the variable names in sorted order.
func VariableNames(vars map[string]Variable) []string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
