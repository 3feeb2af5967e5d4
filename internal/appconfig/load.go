package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkt.systems/cellbook/schema"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("storage.driver", cfg.Storage.Driver)
	v.SetDefault("storage.sqlite_path", cfg.Storage.SQLitePath)
	v.SetDefault("session.autosave_quiet_ms", cfg.Session.AutosaveQuietMS)
	v.SetDefault("session.undo_limit", cfg.Session.UndoLimit)
	v.SetDefault("session.max_parallel", cfg.Session.MaxParallel)
	v.SetDefault("session.default_kernel", cfg.Session.DefaultKernel)
	v.SetDefault("session.templates", cfg.Session.Templates)
	v.SetDefault("notebook.auto_save", cfg.Notebook.AutoSave)
	v.SetDefault("notebook.execution_mode", cfg.Notebook.ExecutionMode)
	v.SetDefault("notebook.font_size", cfg.Notebook.FontSize)
	v.SetDefault("notebook.tab_size", cfg.Notebook.TabSize)
	v.SetDefault("notebook.word_wrap", cfg.Notebook.WordWrap)
	v.SetDefault("notebook.show_line_numbers", cfg.Notebook.ShowLineNumbers)
	v.SetDefault("kernels.enabled", cfg.Kernels.Enabled)
	v.SetDefault("kernels.execute_timeout_seconds", cfg.Kernels.ExecuteTimeoutSeconds)
	v.SetDefault("kernels.remote.enabled", cfg.Kernels.Remote.Enabled)
	v.SetDefault("kernels.remote.socket_path", cfg.Kernels.Remote.SocketPath)
	v.SetDefault("kernels.remote.keepalive_interval_seconds", cfg.Kernels.Remote.KeepaliveIntervalSeconds)
	v.SetDefault("kernels.remote.keepalive_misses", cfg.Kernels.Remote.KeepaliveMisses)
	v.SetDefault("data_sources", cfg.DataSources)
	v.SetDefault("logging.disable_audit_trails", cfg.Logging.DisableAuditTrails)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.InConfig("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var knownKernels = map[string]struct{}{"expr": {}, "javascript": {}, "go": {}}

func validate(cfg Config) error {
	switch cfg.Storage.Driver {
	case StorageFile:
	case StorageSQLite:
		if strings.TrimSpace(cfg.Storage.SQLitePath) == "" {
			return fmt.Errorf("storage.sqlite_path is required for driver %q", StorageSQLite)
		}
	default:
		return fmt.Errorf("unsupported storage.driver %q", cfg.Storage.Driver)
	}
	if _, err := schema.ParseExecutionMode(cfg.Notebook.ExecutionMode); err != nil {
		return fmt.Errorf("notebook.execution_mode: %w", err)
	}
	for _, name := range cfg.Kernels.Enabled {
		if _, ok := knownKernels[name]; !ok {
			return fmt.Errorf("unknown kernel %q in kernels.enabled", name)
		}
	}
	if cfg.Kernels.ExecuteTimeoutSeconds < 0 {
		return fmt.Errorf("kernels.execute_timeout_seconds must not be negative")
	}
	if cfg.Kernels.Remote.Enabled && strings.TrimSpace(cfg.Kernels.Remote.SocketPath) == "" {
		return fmt.Errorf("kernels.remote.socket_path is required when the remote gateway is enabled")
	}
	for i, source := range cfg.DataSources {
		if strings.TrimSpace(source.Name) == "" {
			return fmt.Errorf("data_sources[%d].name is required", i)
		}
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.Storage.SQLitePath = expandEnv(cfg.Storage.SQLitePath)
	cfg.Kernels.Remote.SocketPath = expandEnv(cfg.Kernels.Remote.SocketPath)
	for i := range cfg.DataSources {
		cfg.DataSources[i].DSN = expandEnv(cfg.DataSources[i].DSN)
	}
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
