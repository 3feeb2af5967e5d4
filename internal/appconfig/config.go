package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/cellbook/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int                 `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string              `mapstructure:"state_dir" yaml:"state_dir"`
	Storage       StorageConfig       `mapstructure:"storage" yaml:"storage"`
	Session       SessionConfig       `mapstructure:"session" yaml:"session"`
	Notebook      NotebookConfig      `mapstructure:"notebook" yaml:"notebook"`
	Kernels       KernelsConfig       `mapstructure:"kernels" yaml:"kernels"`
	DataSources   []schema.DataSource `mapstructure:"data_sources" yaml:"data_sources"`
	Logging       LoggingConfig       `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// Storage drivers.
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// StorageConfig selects where notebooks are persisted.
type StorageConfig struct {
	Driver     string `mapstructure:"driver" yaml:"driver"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

// SessionConfig controls notebook session behavior.
type SessionConfig struct {
	AutosaveQuietMS int               `mapstructure:"autosave_quiet_ms" yaml:"autosave_quiet_ms"`
	UndoLimit       int               `mapstructure:"undo_limit" yaml:"undo_limit"`
	MaxParallel     int               `mapstructure:"max_parallel" yaml:"max_parallel"`
	DefaultKernel   string            `mapstructure:"default_kernel" yaml:"default_kernel"`
	Templates       map[string]string `mapstructure:"templates" yaml:"templates"`
}

// NotebookConfig holds the settings new notebooks start with.
type NotebookConfig struct {
	AutoSave        bool   `mapstructure:"auto_save" yaml:"auto_save"`
	ExecutionMode   string `mapstructure:"execution_mode" yaml:"execution_mode"`
	FontSize        int    `mapstructure:"font_size" yaml:"font_size"`
	TabSize         int    `mapstructure:"tab_size" yaml:"tab_size"`
	WordWrap        bool   `mapstructure:"word_wrap" yaml:"word_wrap"`
	ShowLineNumbers bool   `mapstructure:"show_line_numbers" yaml:"show_line_numbers"`
}

// KernelsConfig selects the built-in kernels and the remote gateway.
type KernelsConfig struct {
	Enabled               []string     `mapstructure:"enabled" yaml:"enabled"`
	ExecuteTimeoutSeconds int          `mapstructure:"execute_timeout_seconds" yaml:"execute_timeout_seconds"`
	Remote                RemoteConfig `mapstructure:"remote" yaml:"remote"`
}

// RemoteConfig points at a kernel gateway socket.
type RemoteConfig struct {
	Enabled                  bool   `mapstructure:"enabled" yaml:"enabled"`
	SocketPath               string `mapstructure:"socket_path" yaml:"socket_path"`
	KeepaliveIntervalSeconds int    `mapstructure:"keepalive_interval_seconds" yaml:"keepalive_interval_seconds"`
	KeepaliveMisses          int    `mapstructure:"keepalive_misses" yaml:"keepalive_misses"`
}

// LoggingConfig controls audit logging behavior.
type LoggingConfig struct {
	DisableAuditTrails bool `mapstructure:"disable_audit_trails" yaml:"disable_audit_trails"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	settings := schema.DefaultNotebookSettings()
	stateDir := filepath.Join(home, ".cellbook", "state")
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      stateDir,
		Storage: StorageConfig{
			Driver:     StorageFile,
			SQLitePath: filepath.Join(stateDir, "notebooks.db"),
		},
		Session: SessionConfig{
			AutosaveQuietMS: int(schema.DefaultAutosaveQuiet / time.Millisecond),
			UndoLimit:       schema.DefaultUndoLimit,
			MaxParallel:     schema.DefaultMaxParallel,
			DefaultKernel:   "expr",
			Templates:       map[string]string{},
		},
		Notebook: NotebookConfig{
			AutoSave:        settings.AutoSave,
			ExecutionMode:   string(settings.ExecutionMode),
			FontSize:        settings.FontSize,
			TabSize:         settings.TabSize,
			WordWrap:        settings.WordWrap,
			ShowLineNumbers: settings.ShowLineNumbers,
		},
		Kernels: KernelsConfig{
			Enabled:               []string{"expr", "javascript", "go"},
			ExecuteTimeoutSeconds: 0,
			Remote: RemoteConfig{
				Enabled:                  false,
				SocketPath:               filepath.Join(stateDir, "kernel.sock"),
				KeepaliveIntervalSeconds: 0,
				KeepaliveMisses:          3,
			},
		},
		DataSources: []schema.DataSource{},
		Logging: LoggingConfig{
			DisableAuditTrails: false,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cellbook", "config.yaml"), nil
}

// ServiceConfig converts the file config into a session config.
func (c Config) ServiceConfig() (schema.ServiceConfig, error) {
	mode, err := schema.ParseExecutionMode(c.Notebook.ExecutionMode)
	if err != nil {
		return schema.ServiceConfig{}, err
	}
	templates := schema.Templates{}
	for name, content := range c.Session.Templates {
		cellType, err := schema.ParseCellType(name)
		if err != nil {
			return schema.ServiceConfig{}, err
		}
		templates[cellType] = content
	}
	cfg := schema.ServiceConfig{
		StateDir:       c.StateDir,
		AutosaveQuiet:  time.Duration(c.Session.AutosaveQuietMS) * time.Millisecond,
		UndoLimit:      c.Session.UndoLimit,
		MaxParallel:    c.Session.MaxParallel,
		DefaultKernel:  schema.KernelID(c.Session.DefaultKernel),
		ExecuteTimeout: time.Duration(c.Kernels.ExecuteTimeoutSeconds) * time.Second,
		Templates:      templates,
		Settings: schema.NotebookSettings{
			AutoSave:        c.Notebook.AutoSave,
			ExecutionMode:   mode,
			FontSize:        c.Notebook.FontSize,
			TabSize:         c.Notebook.TabSize,
			WordWrap:        c.Notebook.WordWrap,
			ShowLineNumbers: c.Notebook.ShowLineNumbers,
		},
		DataSources:         append([]schema.DataSource(nil), c.DataSources...),
		DisableAuditLogging: c.Logging.DisableAuditTrails,
	}
	return schema.NormalizeServiceConfig(cfg)
}
