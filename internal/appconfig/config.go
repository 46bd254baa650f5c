package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/codepad/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	DataDir       string        `mapstructure:"data_dir" yaml:"data_dir"`
	Editor        EditorConfig  `mapstructure:"editor" yaml:"editor"`
	HTTP          HTTPConfig    `mapstructure:"http" yaml:"http"`
	Auth          AuthConfig    `mapstructure:"auth" yaml:"auth"`
	Assistant     AssistConfig  `mapstructure:"assistant" yaml:"assistant"`
	Sandbox       SandboxConfig `mapstructure:"sandbox" yaml:"sandbox"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// EditorConfig controls the editor core service.
type EditorConfig struct {
	HistoryCapacity    int `mapstructure:"history_capacity" yaml:"history_capacity"`
	CaptureDebounceMS  int `mapstructure:"capture_debounce_ms" yaml:"capture_debounce_ms"`
	PreviewDebounceMS  int `mapstructure:"preview_debounce_ms" yaml:"preview_debounce_ms"`
	SavedDisplayMS     int `mapstructure:"saved_display_ms" yaml:"saved_display_ms"`
	MaxSessionsPerUser int `mapstructure:"max_sessions_per_user" yaml:"max_sessions_per_user"`
	MaxBufferKB        int `mapstructure:"max_buffer_kb" yaml:"max_buffer_kb"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr            string `mapstructure:"addr" yaml:"addr"`
	SessionCookie   string `mapstructure:"session_cookie" yaml:"session_cookie"`
	SessionTTLHours int    `mapstructure:"session_ttl_hours" yaml:"session_ttl_hours"`
	BaseURL         string `mapstructure:"base_url" yaml:"base_url"`
	BasePath        string `mapstructure:"base_path" yaml:"base_path"`
}

// AuthConfig configures auth storage and seed users.
type AuthConfig struct {
	UserFile  string     `mapstructure:"user_file" yaml:"user_file"`
	SeedUsers []SeedUser `mapstructure:"seed_users" yaml:"seed_users"`
}

// SeedUser seeds a user record in the auth store.
type SeedUser struct {
	Username     string `mapstructure:"username" yaml:"username"`
	PasswordHash string `mapstructure:"password_hash" yaml:"password_hash"`
	TOTPSecret   string `mapstructure:"totp_secret" yaml:"totp_secret"`
}

// AssistConfig configures the AI assistant backend. An empty endpoint
// disables the assistant.
type AssistConfig struct {
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint"`
	APIKeyEnv      string `mapstructure:"api_key_env" yaml:"api_key_env"`
	Model          string `mapstructure:"model" yaml:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// SandboxConfig configures the headless document checker.
type SandboxConfig struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	ChromePath     string `mapstructure:"chrome_path" yaml:"chrome_path"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		DataDir:       filepath.Join(home, ".codepad", "data"),
		Editor: EditorConfig{
			HistoryCapacity:    schema.DefaultHistoryCapacity,
			CaptureDebounceMS:  int(schema.DefaultCaptureDebounce.Milliseconds()),
			PreviewDebounceMS:  int(schema.DefaultPreviewDebounce.Milliseconds()),
			SavedDisplayMS:     int(schema.DefaultSavedDisplay.Milliseconds()),
			MaxSessionsPerUser: schema.DefaultMaxSessionsPerUser,
			MaxBufferKB:        schema.DefaultMaxBufferBytes / 1024,
		},
		HTTP: HTTPConfig{
			Addr:            ":27490",
			SessionCookie:   "codepad_session",
			SessionTTLHours: 720,
			BaseURL:         "",
			BasePath:        "",
		},
		Auth: AuthConfig{
			UserFile:  filepath.Join(home, ".codepad", "users.json"),
			SeedUsers: []SeedUser{},
		},
		Assistant: AssistConfig{
			Endpoint:       "",
			APIKeyEnv:      "CODEPAD_ASSIST_API_KEY",
			Model:          "",
			TimeoutSeconds: 60,
		},
		Sandbox: SandboxConfig{
			Enabled:        false,
			ChromePath:     "",
			TimeoutSeconds: 10,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".codepad", "config.yaml"), nil
}
