package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Ninjadash54/simonsays/internal/game"
)

// Config holds application configuration.
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Game     GameConfig
	Daily    DailyConfig
	Registry RegistryConfig
	Peer     PeerConfig
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Port         string
	ClientOrigin string        `mapstructure:"client_origin"`
	SessionIdle  time.Duration `mapstructure:"session_idle"` // hosted games idle longer are dropped
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
}

// GameConfig holds defaults for hosted games.
type GameConfig struct {
	Symbols    int
	BaseLength int           `mapstructure:"base_length"`
	MaxRounds  int           `mapstructure:"max_rounds"`
	LeadIn     time.Duration `mapstructure:"lead_in"`
	Reveal     time.Duration
	Gap        time.Duration
}

// DailyConfig holds daily game settings.
type DailyConfig struct {
	Salt string
	TZ   string
}

// RegistryConfig holds peer registry settings.
type RegistryConfig struct {
	TTL time.Duration
}

// PeerConfig holds the local peer session settings.
type PeerConfig struct {
	Enabled       bool
	Service       string
	Name          string
	RegistryURL   string `mapstructure:"registry_url"`
	Listen        string
	Secret        string
	RequireToken  bool          `mapstructure:"require_token"`
	InviteTimeout time.Duration `mapstructure:"invite_timeout"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
}

// Load reads configuration from file and env. Env var overrides use prefix SIMON_.
func Load() (Config, error) {
	v := viper.New()

	host, _ := os.Hostname()
	def := game.DefaultConfig()

	// default values
	v.SetDefault("server.port", "5175")
	v.SetDefault("server.client_origin", "http://localhost:5173")
	v.SetDefault("server.session_idle", time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("game.symbols", def.SymbolCount)
	v.SetDefault("game.base_length", def.BaseLength)
	v.SetDefault("game.max_rounds", def.MaxRounds)
	v.SetDefault("game.lead_in", def.LeadIn)
	v.SetDefault("game.reveal", def.Reveal)
	v.SetDefault("game.gap", def.Gap)
	v.SetDefault("daily.salt", "dev_daily_salt")
	v.SetDefault("daily.tz", "UTC")
	v.SetDefault("registry.ttl", 30*time.Second)
	v.SetDefault("peer.enabled", false)
	v.SetDefault("peer.service", "example-service")
	v.SetDefault("peer.name", host)
	v.SetDefault("peer.registry_url", "http://localhost:5175")
	v.SetDefault("peer.listen", "127.0.0.1:0")
	v.SetDefault("peer.secret", "")
	v.SetDefault("peer.require_token", false)
	v.SetDefault("peer.invite_timeout", 10*time.Second)
	v.SetDefault("peer.poll_interval", 2*time.Second)

	v.SetConfigType("toml")
	cfgPath := os.Getenv("SIMON_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("simonsays")
	}

	v.SetEnvPrefix("SIMON")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present; an explicit SIMON_CONFIG must exist
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Engine converts the game section into an engine config.
func (g GameConfig) Engine() game.Config {
	return game.Config{
		SymbolCount: g.Symbols,
		BaseLength:  g.BaseLength,
		MaxRounds:   g.MaxRounds,
		LeadIn:      g.LeadIn,
		Reveal:      g.Reveal,
		Gap:         g.Gap,
	}
}

// Location resolves the daily time zone.
func (d DailyConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(d.TZ)
	if err != nil {
		return nil, fmt.Errorf("daily.tz %q: %w", d.TZ, err)
	}
	return loc, nil
}
