package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sessamekesh/peersync/pkg/message"
)

func writeFile(t *testing.T, name string, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefaultSettingsAreValid(t *testing.T) {
	cfg := DefaultSettings()
	if err := ValidateSettings(cfg); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.Network.ProtocolId != 7 || cfg.Network.MaxClients != 64 {
		t.Fatalf("unexpected netcode defaults: %+v", cfg.Network)
	}
	if cfg.Simulation.SpawnPoint != (message.Vec3{X: 0, Y: 1.3, Z: 0}) {
		t.Fatalf("unexpected spawn point %v", cfg.Simulation.SpawnPoint)
	}
}

func TestLoadSettingsFileOverridesOnlyDefinedKeys(t *testing.T) {
	path := writeFile(t, "peersync.toml", `
host = true

[network]
listen_address = ":6000"
max_clients = 8
max_message_size = 131072

[simulation]
spawn_point = [1.0, 2.0, 3.0]

[projectile]
lifetime = "2s"

[connect]
max_delay = "1s"
`)

	cfg, err := LoadSettingsFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	defaults := DefaultSettings()
	if !cfg.IsHost {
		t.Fatalf("host flag not applied")
	}
	if cfg.Network.ListenAddress != ":6000" || cfg.Network.MaxClients != 8 || cfg.Network.MaxMessageSize != 131072 {
		t.Fatalf("network overrides not applied: %+v", cfg.Network)
	}
	if cfg.Network.Endpoint != defaults.Network.Endpoint || cfg.Network.ProtocolId != defaults.Network.ProtocolId {
		t.Fatalf("undefined network keys changed: %+v", cfg.Network)
	}
	if cfg.Simulation.SpawnPoint != (message.Vec3{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("spawn point = %v", cfg.Simulation.SpawnPoint)
	}
	if cfg.Simulation.TickHz != defaults.Simulation.TickHz {
		t.Fatalf("tick rate changed to %d", cfg.Simulation.TickHz)
	}
	if cfg.Projectile.Lifetime != 2*time.Second || cfg.Projectile.ReplicaSpeed != 70 {
		t.Fatalf("projectile settings = %+v", cfg.Projectile)
	}
	if cfg.Connect.MaxDelay != time.Second || cfg.Connect.InitialDelay != defaults.Connect.InitialDelay {
		t.Fatalf("connect settings = %+v", cfg.Connect)
	}
}

func TestLoadSettingsFileRejectsBadDuration(t *testing.T) {
	path := writeFile(t, "bad.toml", `
[projectile]
lifetime = "ten seconds"
`)
	if _, err := LoadSettingsFile(path); err == nil {
		t.Fatalf("expected duration parse error")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		EnvIsHost:      "true",
		EnvHostAddress: "10.0.0.2:5000",
		EnvMaxClients:  " 12 ",
		EnvTickHz:      "30",
	}
	cfg := DefaultSettings()
	if err := ApplyEnvOverrides(&cfg, func(k string) string { return env[k] }); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if !cfg.IsHost || cfg.Network.HostAddress != "10.0.0.2:5000" || cfg.Network.MaxClients != 12 || cfg.Simulation.TickHz != 30 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.Network.ListenAddress != ":5000" {
		t.Fatalf("unset variable changed listen address to %q", cfg.Network.ListenAddress)
	}

	env[EnvTickHz] = "fast"
	if err := ApplyEnvOverrides(&cfg, func(k string) string { return env[k] }); err == nil {
		t.Fatalf("expected parse error for %s", EnvTickHz)
	}
}

func TestLoadDotenv(t *testing.T) {
	if err := LoadDotenv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing .env should be ignored, got %v", err)
	}

	path := writeFile(t, ".env", "PEERSYNC_TEST_DOTENV_VALUE=from-dotenv\n")
	t.Setenv("PEERSYNC_TEST_DOTENV_VALUE", "")
	os.Unsetenv("PEERSYNC_TEST_DOTENV_VALUE")
	if err := LoadDotenv(path); err != nil {
		t.Fatalf("load .env: %v", err)
	}
	if got := os.Getenv("PEERSYNC_TEST_DOTENV_VALUE"); got != "from-dotenv" {
		t.Fatalf("dotenv value = %q", got)
	}
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"zero tick rate", func(s *Settings) { s.Simulation.TickHz = 0 }},
		{"zero drain cap", func(s *Settings) { s.Simulation.MaxMessagesPerTick = 0 }},
		{"no clients", func(s *Settings) { s.Network.MaxClients = 0 }},
		{"read limit below largest message", func(s *Settings) { s.Network.MaxMessageSize = 1024 }},
		{"relative endpoint", func(s *Settings) { s.Network.Endpoint = "ws" }},
		{"webtransport without cert", func(s *Settings) { s.Network.WebtransportAddress = ":4433" }},
		{"host without listen address", func(s *Settings) { s.IsHost = true; s.Network.ListenAddress = "" }},
		{"zero lifetime", func(s *Settings) { s.Projectile.Lifetime = 0 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultSettings()
			tc.mutate(&cfg)
			if err := ValidateSettings(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
