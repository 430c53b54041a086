package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that encodes to TOML as a string like "500ms".
type Duration time.Duration

func (d Duration) Value() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config is the main configuration for space.
type Config struct {
	BaseDir string `toml:"base_dir"`
	LogDir  string `toml:"log_dir"`

	Store       StoreConfig       `toml:"store"`
	Remote      RemoteConfig      `toml:"remote"`
	Secrets     SecretsConfig     `toml:"secrets"`
	Persistence PersistenceConfig `toml:"persistence"`
}

// StoreConfig configures the shared local key-value store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type string `toml:"type"` // "sqlite" or "memory"

	// Path is the SQLite file path (only used when Type == "sqlite").
	Path string `toml:"path,omitempty"`

	// MaxValueBytes caps the size of a single stored value. Writes above
	// the cap fail with a quota error. 0 means the default cap.
	MaxValueBytes int64 `toml:"max_value_bytes"`
}

// RemoteConfig configures the remote conversation service client.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RemoteConfig struct {
	Type string `toml:"type"` // "http" or "memory"

	// BaseURL is the service root, e.g. "https://api.example.com"
	// (only used when Type == "http").
	BaseURL string `toml:"base_url,omitempty"`

	// TokenEnv names the environment variable holding the bearer
	// credential. Read on every call, so sign-in mid-session is picked up.
	TokenEnv string `toml:"token_env"`
}

// SecretsConfig configures at-rest encryption of stored API keys.
type SecretsConfig struct {
	Type string `toml:"type"` // "age" (default) or "test"
}

// PersistenceConfig tunes the write scheduler and cross-context watcher.
type PersistenceConfig struct {
	// DebounceWindow is the coalescing delay for roster-like collections.
	DebounceWindow Duration `toml:"debounce_window"`

	// WatchInterval is how often a context polls for foreign changes.
	WatchInterval Duration `toml:"watch_interval"`

	// MigrationPause is the delay between consecutive session transfers.
	MigrationPause Duration `toml:"migration_pause"`
}

// NewConfig creates a Config with defaults rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Store: StoreConfig{
			Type:          "sqlite",
			Path:          filepath.Join(baseDir, "space.db"),
			MaxValueBytes: 1 << 20,
		},
		Remote: RemoteConfig{
			Type:     "http",
			BaseURL:  "http://localhost:8080",
			TokenEnv: "SPACE_API_TOKEN",
		},
		Secrets: SecretsConfig{Type: "age"},
		Persistence: PersistenceConfig{
			DebounceWindow: Duration(500 * time.Millisecond),
			WatchInterval:  Duration(250 * time.Millisecond),
			MigrationPause: Duration(500 * time.Millisecond),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
