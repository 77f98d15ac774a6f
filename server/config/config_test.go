package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 7777 {
		t.Errorf("Port = %d, want 7777", cfg.Port)
	}
	if cfg.TickRate != 30 {
		t.Errorf("TickRate = %d, want 30", cfg.TickRate)
	}
	if cfg.MaxPlayers != 4 {
		t.Errorf("MaxPlayers = %d, want 4", cfg.MaxPlayers)
	}
	if cfg.SpawnDelay != 100*time.Millisecond {
		t.Errorf("SpawnDelay = %v, want 100ms", cfg.SpawnDelay)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GALLERY_PORT", "9000")
	t.Setenv("GALLERY_TICK_RATE", "60")
	t.Setenv("GALLERY_HEADLESS", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9000 || cfg.TickRate != 60 || !cfg.Headless {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.TickInterval() != time.Second/60 {
		t.Errorf("TickInterval = %v", cfg.TickInterval())
	}
}

func TestLoad_DotenvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("GALLERY_MAX_PLAYERS=8\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("GALLERY_MAX_PLAYERS") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxPlayers != 8 {
		t.Errorf("MaxPlayers = %d, want 8", cfg.MaxPlayers)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("GALLERY_MAX_PLAYERS", "17")
	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); !errors.Is(err, ErrInvalidMaxPlayers) {
		t.Errorf("err = %v, want %v", err, ErrInvalidMaxPlayers)
	}
}

func TestSlogLevel(t *testing.T) {
	cfg := Config{LogLevel: "warn"}
	if lvl, err := cfg.SlogLevel(); err != nil || lvl != slog.LevelWarn {
		t.Errorf("SlogLevel = %v, %v", lvl, err)
	}
	cfg.Verbose = true
	if lvl, _ := cfg.SlogLevel(); lvl != slog.LevelDebug {
		t.Errorf("verbose SlogLevel = %v, want debug", lvl)
	}
	cfg = Config{LogLevel: "loud"}
	if _, err := cfg.SlogLevel(); !errors.Is(err, ErrInvalidLogLevel) {
		t.Errorf("err = %v, want %v", err, ErrInvalidLogLevel)
	}
}
