package config_test

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andrewblevins/space-sub000/internal/config"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := config.NewConfig("/data/space")

	if cfg.Store.Type != "sqlite" {
		t.Errorf("store type = %q", cfg.Store.Type)
	}
	if cfg.Store.Path != filepath.Join("/data/space", "space.db") {
		t.Errorf("store path = %q", cfg.Store.Path)
	}
	if cfg.Store.MaxValueBytes != 1<<20 {
		t.Errorf("max value bytes = %d", cfg.Store.MaxValueBytes)
	}
	if cfg.Remote.Type != "http" || cfg.Remote.TokenEnv != "SPACE_API_TOKEN" {
		t.Errorf("remote = %+v", cfg.Remote)
	}
	if cfg.Secrets.Type != "age" {
		t.Errorf("secrets type = %q", cfg.Secrets.Type)
	}
	if cfg.Persistence.DebounceWindow.Value() != 500*time.Millisecond {
		t.Errorf("debounce window = %v", cfg.Persistence.DebounceWindow.Value())
	}
	if cfg.Persistence.WatchInterval.Value() != 250*time.Millisecond {
		t.Errorf("watch interval = %v", cfg.Persistence.WatchInterval.Value())
	}
}

func TestInitAndReadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "space.toml")
	cfg := config.NewConfig("/data/space")
	cfg.Remote.BaseURL = "https://api.example.com"
	cfg.Persistence.MigrationPause = config.Duration(2 * time.Second)

	if err := config.Init(path, cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}

	loaded, err := config.ReadFromFile(path)
	if err != nil {
		t.Fatalf("ReadFromFile: %v", err)
	}
	if loaded.Remote.BaseURL != "https://api.example.com" {
		t.Errorf("base url = %q", loaded.Remote.BaseURL)
	}
	if loaded.Store.Path != cfg.Store.Path {
		t.Errorf("store path = %q", loaded.Store.Path)
	}
	if loaded.Persistence.MigrationPause.Value() != 2*time.Second {
		t.Errorf("migration pause = %v", loaded.Persistence.MigrationPause.Value())
	}
}

func TestInitRefusesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "space.toml")
	if err := config.Init(path, config.NewConfig("/data")); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := config.Init(path, config.NewConfig("/data")); err == nil {
		t.Error("second Init should refuse to overwrite")
	}
}

func TestDurationParsing(t *testing.T) {
	m := &config.Manager{}

	cfg, err := m.Read(strings.NewReader(`
[persistence]
debounce_window = "750ms"
watch_interval = "1s"
`))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if cfg.Persistence.DebounceWindow.Value() != 750*time.Millisecond {
		t.Errorf("debounce window = %v", cfg.Persistence.DebounceWindow.Value())
	}
	if cfg.Persistence.WatchInterval.Value() != time.Second {
		t.Errorf("watch interval = %v", cfg.Persistence.WatchInterval.Value())
	}

	if _, err := m.Read(strings.NewReader(`
[persistence]
debounce_window = "fast"
`)); err == nil {
		t.Error("malformed duration accepted")
	}
}
