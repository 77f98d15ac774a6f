package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrInvalidPort       = errors.New("config: port must be between 0 and 65535")
	ErrInvalidTickRate   = errors.New("config: tick rate must be between 10 and 60")
	ErrInvalidMaxPlayers = errors.New("config: max players must be between 2 and 16")
	ErrInvalidLogLevel   = errors.New("config: unknown log level")
)

// Config はプロセス全体の設定です。環境変数 (と任意の .env) から読み込みます。
type Config struct {
	Addr       string `env:"GALLERY_ADDR" envDefault:"0.0.0.0"`
	Port       int    `env:"GALLERY_PORT" envDefault:"7777"`
	Headless   bool   `env:"GALLERY_HEADLESS" envDefault:"false"`
	TickRate   int    `env:"GALLERY_TICK_RATE" envDefault:"30"`
	MaxPlayers int    `env:"GALLERY_MAX_PLAYERS" envDefault:"4"`
	Verbose    bool   `env:"GALLERY_VERBOSE" envDefault:"false"`

	ContentPath string `env:"GALLERY_CONTENT_PATH"`
	ModPath     string `env:"GALLERY_MOD_PATH" envDefault:"Mods/ModConfig.json"`
	SavePath    string `env:"GALLERY_SAVE_PATH" envDefault:"gamesave.db"`

	AuthSecret string        `env:"GALLERY_AUTH_SECRET" envDefault:"gallery-dev-secret"`
	AuthTTL    time.Duration `env:"GALLERY_AUTH_TTL" envDefault:"12h"`

	LogLevel     string `env:"GALLERY_LOG_LEVEL" envDefault:"info"`
	OTLPEndpoint string `env:"GALLERY_OTLP_ENDPOINT"`

	SpawnDelay        time.Duration `env:"GALLERY_SPAWN_DELAY" envDefault:"100ms"`
	HeartbeatInterval time.Duration `env:"GALLERY_HEARTBEAT_INTERVAL" envDefault:"5s"`
	IdleTimeout       time.Duration `env:"GALLERY_IDLE_TIMEOUT" envDefault:"30s"`
	ConnectTimeout    time.Duration `env:"GALLERY_CONNECT_TIMEOUT" envDefault:"5s"`
}

// Load は .env を読み込んだ後に環境変数を解釈します。.env が無いのは正常です。
func Load(dotenvFiles ...string) (Config, error) {
	if err := godotenv.Load(dotenvFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.TickRate < 10 || c.TickRate > 60 {
		return ErrInvalidTickRate
	}
	if c.MaxPlayers < 2 || c.MaxPlayers > 16 {
		return ErrInvalidMaxPlayers
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

func (c Config) TickInterval() time.Duration {
	if c.TickRate <= 0 {
		return time.Second / 30
	}
	return time.Second / time.Duration(c.TickRate)
}

func (c Config) SlogLevel() (slog.Level, error) {
	if c.Verbose {
		return slog.LevelDebug, nil
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
}

func (c Config) ListenAddr(port int) string {
	return fmt.Sprintf("%s:%d", c.Addr, port)
}
