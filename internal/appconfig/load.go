package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkt.systems/codepad/schema"
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
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("editor.history_capacity", cfg.Editor.HistoryCapacity)
	v.SetDefault("editor.capture_debounce_ms", cfg.Editor.CaptureDebounceMS)
	v.SetDefault("editor.preview_debounce_ms", cfg.Editor.PreviewDebounceMS)
	v.SetDefault("editor.saved_display_ms", cfg.Editor.SavedDisplayMS)
	v.SetDefault("editor.max_sessions_per_user", cfg.Editor.MaxSessionsPerUser)
	v.SetDefault("editor.max_buffer_kb", cfg.Editor.MaxBufferKB)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.session_cookie", cfg.HTTP.SessionCookie)
	v.SetDefault("http.session_ttl_hours", cfg.HTTP.SessionTTLHours)
	v.SetDefault("http.base_url", cfg.HTTP.BaseURL)
	v.SetDefault("http.base_path", cfg.HTTP.BasePath)
	v.SetDefault("auth.user_file", cfg.Auth.UserFile)
	v.SetDefault("auth.seed_users", cfg.Auth.SeedUsers)
	v.SetDefault("assistant.endpoint", cfg.Assistant.Endpoint)
	v.SetDefault("assistant.api_key_env", cfg.Assistant.APIKeyEnv)
	v.SetDefault("assistant.model", cfg.Assistant.Model)
	v.SetDefault("assistant.timeout_seconds", cfg.Assistant.TimeoutSeconds)
	v.SetDefault("sandbox.enabled", cfg.Sandbox.Enabled)
	v.SetDefault("sandbox.chrome_path", cfg.Sandbox.ChromePath)
	v.SetDefault("sandbox.timeout_seconds", cfg.Sandbox.TimeoutSeconds)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !errors.Is(err, fs.ErrNotExist) {
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
		if v.IsSet("http.enable_websockets") {
			return Config{}, fmt.Errorf("http.enable_websockets is not supported; events stream over SSE")
		}
		if v.IsSet("editor.autosave") {
			return Config{}, fmt.Errorf("editor.autosave is not supported; saving is always explicit")
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validateHTTPConfig(cfg.HTTP); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// EditorConfig converts the file-level editor settings to the core service config.
func (c Config) EditorConfig() schema.EditorConfig {
	return schema.EditorConfig{
		HistoryCapacity:    c.Editor.HistoryCapacity,
		CaptureDebounce:    time.Duration(c.Editor.CaptureDebounceMS) * time.Millisecond,
		PreviewDebounce:    time.Duration(c.Editor.PreviewDebounceMS) * time.Millisecond,
		SavedDisplay:       time.Duration(c.Editor.SavedDisplayMS) * time.Millisecond,
		MaxSessionsPerUser: c.Editor.MaxSessionsPerUser,
		MaxBufferBytes:     c.Editor.MaxBufferKB * 1024,
	}
}

func validateHTTPConfig(cfg HTTPConfig) error {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL != "" {
		parsed, err := url.Parse(baseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("http.base_url must include scheme and host (e.g. https://example.com)")
		}
	}
	basePath := strings.TrimSpace(cfg.BasePath)
	if basePath != "" {
		if strings.Contains(basePath, "://") {
			return fmt.Errorf("http.base_path must be a path prefix, not a URL")
		}
		if strings.ContainsAny(basePath, "?#") {
			return fmt.Errorf("http.base_path must not include query or fragment")
		}
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.DataDir = expandEnv(cfg.DataDir)
	cfg.Auth.UserFile = expandEnv(cfg.Auth.UserFile)
	cfg.Assistant.Endpoint = expandEnv(cfg.Assistant.Endpoint)
	cfg.Sandbox.ChromePath = expandEnv(cfg.Sandbox.ChromePath)
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
