package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Ninjadash54/simonsays/internal/game"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Port != "5175" {
		t.Errorf("server.port = %q, want 5175", c.Server.Port)
	}
	if c.Peer.Service != "example-service" {
		t.Errorf("peer.service = %q, want example-service", c.Peer.Service)
	}
	if c.Peer.InviteTimeout != 10*time.Second {
		t.Errorf("peer.invite_timeout = %v, want 10s", c.Peer.InviteTimeout)
	}
	if c.Server.SessionIdle != time.Hour {
		t.Errorf("server.session_idle = %v, want 1h", c.Server.SessionIdle)
	}
	if c.Registry.TTL != 30*time.Second {
		t.Errorf("registry.ttl = %v, want 30s", c.Registry.TTL)
	}
	if got := c.Game.Engine(); got != game.DefaultConfig() {
		t.Errorf("game = %+v, want %+v", got, game.DefaultConfig())
	}
	if _, err := c.Daily.Location(); err != nil {
		t.Errorf("daily location: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SIMON_GAME_MAX_ROUNDS", "6")
	t.Setenv("SIMON_GAME_REVEAL", "250ms")
	t.Setenv("SIMON_PEER_ENABLED", "true")
	t.Setenv("SIMON_PEER_REGISTRY_URL", "http://host:9000")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Game.MaxRounds != 6 {
		t.Errorf("max_rounds = %d, want 6", c.Game.MaxRounds)
	}
	if c.Game.Reveal != 250*time.Millisecond {
		t.Errorf("reveal = %v, want 250ms", c.Game.Reveal)
	}
	if !c.Peer.Enabled {
		t.Error("peer.enabled should be true")
	}
	if c.Peer.RegistryURL != "http://host:9000" {
		t.Errorf("registry_url = %q", c.Peer.RegistryURL)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "simonsays.toml")
	data := []byte(`
[game]
symbols = 6
base_length = 2

[daily]
tz = "Australia/Melbourne"
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SIMON_CONFIG", path)

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Game.Symbols != 6 || c.Game.BaseLength != 2 {
		t.Errorf("game = %+v", c.Game)
	}
	if c.Game.MaxRounds != 4 {
		t.Errorf("max_rounds = %d, want default 4", c.Game.MaxRounds)
	}
	if c.Daily.TZ != "Australia/Melbourne" {
		t.Errorf("daily.tz = %q", c.Daily.TZ)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Setenv("SIMON_CONFIG", filepath.Join(t.TempDir(), "nope.toml"))
	if _, err := Load(); err == nil {
		t.Error("expected error for missing SIMON_CONFIG file")
	}
}

func TestBadTimezone(t *testing.T) {
	if _, err := (DailyConfig{TZ: "Mars/Olympus"}).Location(); err == nil {
		t.Error("expected error for unknown zone")
	}
}
