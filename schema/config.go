package schema

import (
	"os"
	"path/filepath"
	"time"
)

// ServiceConfig defines defaults and limits for a notebook session.
type ServiceConfig struct {
	StateDir       string
	AutosaveQuiet  time.Duration
	UndoLimit      int
	MaxParallel    int
	DefaultKernel  KernelID
	ExecuteTimeout time.Duration
	Templates      Templates
	Settings       NotebookSettings
	DataSources    []DataSource
	// DisableAuditLogging disables audit trail debug logs for commands.
	DisableAuditLogging bool
}

const (
	// DefaultAutosaveQuiet is the debounce period before an autosave fires.
	DefaultAutosaveQuiet = 1500 * time.Millisecond
	// DefaultUndoLimit bounds the undo history.
	DefaultUndoLimit = 200
	// DefaultMaxParallel bounds concurrent cells in parallel mode.
	DefaultMaxParallel = 4
)

// NormalizeServiceConfig applies defaults and validates the config.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ServiceConfig{}, err
		}
		cfg.StateDir = filepath.Join(home, ".cellbook", "state")
	}
	if cfg.AutosaveQuiet <= 0 {
		cfg.AutosaveQuiet = DefaultAutosaveQuiet
	}
	if cfg.UndoLimit <= 0 {
		cfg.UndoLimit = DefaultUndoLimit
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = DefaultMaxParallel
	}
	if cfg.ExecuteTimeout < 0 {
		cfg.ExecuteTimeout = 0
	}
	templates := DefaultTemplates()
	for cellType, content := range cfg.Templates {
		if !cellType.Valid() {
			return ServiceConfig{}, ErrInvalidCellType
		}
		templates[cellType] = content
	}
	cfg.Templates = templates
	if cfg.Settings == (NotebookSettings{}) {
		cfg.Settings = DefaultNotebookSettings()
	}
	mode, err := ParseExecutionMode(string(cfg.Settings.ExecutionMode))
	if err != nil {
		return ServiceConfig{}, err
	}
	cfg.Settings.ExecutionMode = mode
	if cfg.Settings.FontSize <= 0 {
		cfg.Settings.FontSize = DefaultNotebookSettings().FontSize
	}
	if cfg.Settings.TabSize <= 0 {
		cfg.Settings.TabSize = DefaultNotebookSettings().TabSize
	}
	return cfg, nil
}
