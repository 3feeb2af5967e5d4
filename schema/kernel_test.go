package schema

import (
	"errors"
	"testing"
	"time"
)

func TestNewVariableNormalizes(t *testing.T) {
	cases := []struct {
		name     string
		value    any
		wantType string
		wantRepr string
	}{
		{"int", 3, "number", "3"},
		{"string", "hi", "string", `"hi"`},
		{"bool", true, "bool", "true"},
		{"nil", nil, "null", "null"},
		{"ints", []int{1, 2}, "list", "[1,2]"},
		{"map", map[string]int{"a": 1}, "object", `{"a":1}`},
	}
	for _, tc := range cases {
		v := NewVariable(tc.name, tc.value)
		if v.Type != tc.wantType {
			t.Fatalf("%s: expected type %q, got %q", tc.name, tc.wantType, v.Type)
		}
		if v.Repr != tc.wantRepr {
			t.Fatalf("%s: expected repr %q, got %q", tc.name, tc.wantRepr, v.Repr)
		}
	}
}

func TestNormalizeValueUnencodable(t *testing.T) {
	ch := make(chan int)
	if got, ok := NormalizeValue(ch).(string); !ok || got == "" {
		t.Fatalf("expected string fallback, got %#v", NormalizeValue(ch))
	}
}

func TestNormalizeServiceConfigDefaults(t *testing.T) {
	cfg, err := NormalizeServiceConfig(ServiceConfig{StateDir: t.TempDir()})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.AutosaveQuiet != DefaultAutosaveQuiet || cfg.UndoLimit != DefaultUndoLimit || cfg.MaxParallel != DefaultMaxParallel {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Settings != DefaultNotebookSettings() {
		t.Fatalf("expected default settings, got %+v", cfg.Settings)
	}
	if cfg.Templates[CellCode] != DefaultTemplates()[CellCode] {
		t.Fatalf("expected default templates")
	}
}

func TestNormalizeServiceConfigRejectsBadValues(t *testing.T) {
	_, err := NormalizeServiceConfig(ServiceConfig{StateDir: t.TempDir(), Templates: Templates{"chart": "x"}})
	if !errors.Is(err, ErrInvalidCellType) {
		t.Fatalf("expected ErrInvalidCellType, got %v", err)
	}
	_, err = NormalizeServiceConfig(ServiceConfig{
		StateDir: t.TempDir(),
		Settings: NotebookSettings{ExecutionMode: "eventually"},
	})
	if !errors.Is(err, ErrInvalidExecutionMode) {
		t.Fatalf("expected ErrInvalidExecutionMode, got %v", err)
	}
	cfg, err := NormalizeServiceConfig(ServiceConfig{StateDir: t.TempDir(), AutosaveQuiet: 10 * time.Millisecond})
	if err != nil || cfg.AutosaveQuiet != 10*time.Millisecond {
		t.Fatalf("expected explicit quiet period kept, got %v (%v)", cfg.AutosaveQuiet, err)
	}
}
