package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sessamekesh/peersync/pkg/message"
)

const (
	EnvIsHost              = "PEERSYNC_IS_HOST"
	EnvListenAddress       = "PEERSYNC_LISTEN_ADDRESS"
	EnvHostAddress         = "PEERSYNC_HOST_ADDRESS"
	EnvMaxClients          = "PEERSYNC_MAX_CLIENTS"
	EnvTickHz              = "PEERSYNC_TICK_HZ"
	EnvWebtransportAddress = "PEERSYNC_WEBTRANSPORT_ADDRESS"
	EnvCertPath            = "PEERSYNC_TLS_CERT_PATH"
	EnvKeyPath             = "PEERSYNC_TLS_KEY_PATH"
)

type NetworkSettings struct {
	ListenAddress        string
	Endpoint             string
	HostAddress          string
	ProtocolId           uint64
	MaxClients           int
	MaxMessageSize       int64
	MetricsEndpoint      string
	AllowAllHosts        bool
	WebtransportAddress  string
	WebtransportEndpoint string
	CertPath             string
	KeyPath              string
}

type SimulationSettings struct {
	TickHz             int
	MaxMessagesPerTick int
	SpawnPoint         message.Vec3
	PositionSendHz     float64
}

type ProjectileSettings struct {
	LocalSpeed   float32
	ReplicaSpeed float32
	Lifetime     time.Duration
}

type ConnectSettings struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	MaxAttempts  int
}

type Settings struct {
	IsHost     bool
	Network    NetworkSettings
	Simulation SimulationSettings
	Projectile ProjectileSettings
	Connect    ConnectSettings
}

// DefaultSettings mirrors the tuning the game shipped with.
func DefaultSettings() Settings {
	return Settings{
		IsHost: false,
		Network: NetworkSettings{
			ListenAddress:        ":5000",
			Endpoint:             "/ws",
			HostAddress:          "127.0.0.1:5000",
			ProtocolId:           7,
			MaxClients:           64,
			MaxMessageSize:       message.MaxPayloadSize,
			MetricsEndpoint:      "/metrics",
			AllowAllHosts:        true,
			WebtransportEndpoint: "/wt",
		},
		Simulation: SimulationSettings{
			TickHz:             60,
			MaxMessagesPerTick: 1024,
			SpawnPoint:         message.Vec3{X: 0, Y: 1.3, Z: 0},
			PositionSendHz:     60,
		},
		Projectile: ProjectileSettings{
			LocalSpeed:   50,
			ReplicaSpeed: 70,
			Lifetime:     10 * time.Second,
		},
		Connect: ConnectSettings{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			MaxAttempts:  20,
		},
	}
}

type fileConfig struct {
	Host       bool `toml:"host"`
	Network    struct {
		ListenAddress        string `toml:"listen_address"`
		Endpoint             string `toml:"endpoint"`
		HostAddress          string `toml:"host_address"`
		ProtocolId           uint64 `toml:"protocol_id"`
		MaxClients           int    `toml:"max_clients"`
		MaxMessageSize       int64  `toml:"max_message_size"`
		MetricsEndpoint      string `toml:"metrics_endpoint"`
		AllowAllHosts        bool   `toml:"allow_all_hosts"`
		WebtransportAddress  string `toml:"webtransport_address"`
		WebtransportEndpoint string `toml:"webtransport_endpoint"`
		CertPath             string `toml:"cert_path"`
		KeyPath              string `toml:"key_path"`
	} `toml:"network"`
	Simulation struct {
		TickHz             int        `toml:"tick_hz"`
		MaxMessagesPerTick int        `toml:"max_messages_per_tick"`
		SpawnPoint         [3]float32 `toml:"spawn_point"`
		PositionSendHz     float64    `toml:"position_send_hz"`
	} `toml:"simulation"`
	Projectile struct {
		LocalSpeed   float32 `toml:"local_speed"`
		ReplicaSpeed float32 `toml:"replica_speed"`
		Lifetime     string  `toml:"lifetime"`
	} `toml:"projectile"`
	Connect struct {
		InitialDelay string  `toml:"initial_delay"`
		Multiplier   float64 `toml:"multiplier"`
		MaxDelay     string  `toml:"max_delay"`
		MaxAttempts  int     `toml:"max_attempts"`
	} `toml:"connect"`
}

// LoadSettingsFile applies a TOML settings file on top of the defaults. Only
// keys present in the file override anything.
func LoadSettingsFile(path string) (Settings, error) {
	cfg := DefaultSettings()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}

	if meta.IsDefined("host") {
		cfg.IsHost = raw.Host
	}

	if meta.IsDefined("network", "listen_address") {
		cfg.Network.ListenAddress = strings.TrimSpace(raw.Network.ListenAddress)
	}
	if meta.IsDefined("network", "endpoint") {
		cfg.Network.Endpoint = strings.TrimSpace(raw.Network.Endpoint)
	}
	if meta.IsDefined("network", "host_address") {
		cfg.Network.HostAddress = strings.TrimSpace(raw.Network.HostAddress)
	}
	if meta.IsDefined("network", "protocol_id") {
		cfg.Network.ProtocolId = raw.Network.ProtocolId
	}
	if meta.IsDefined("network", "max_clients") {
		cfg.Network.MaxClients = raw.Network.MaxClients
	}
	if meta.IsDefined("network", "max_message_size") {
		cfg.Network.MaxMessageSize = raw.Network.MaxMessageSize
	}
	if meta.IsDefined("network", "metrics_endpoint") {
		cfg.Network.MetricsEndpoint = strings.TrimSpace(raw.Network.MetricsEndpoint)
	}
	if meta.IsDefined("network", "allow_all_hosts") {
		cfg.Network.AllowAllHosts = raw.Network.AllowAllHosts
	}
	if meta.IsDefined("network", "webtransport_address") {
		cfg.Network.WebtransportAddress = strings.TrimSpace(raw.Network.WebtransportAddress)
	}
	if meta.IsDefined("network", "webtransport_endpoint") {
		cfg.Network.WebtransportEndpoint = strings.TrimSpace(raw.Network.WebtransportEndpoint)
	}
	if meta.IsDefined("network", "cert_path") {
		cfg.Network.CertPath = strings.TrimSpace(raw.Network.CertPath)
	}
	if meta.IsDefined("network", "key_path") {
		cfg.Network.KeyPath = strings.TrimSpace(raw.Network.KeyPath)
	}

	if meta.IsDefined("simulation", "tick_hz") {
		cfg.Simulation.TickHz = raw.Simulation.TickHz
	}
	if meta.IsDefined("simulation", "max_messages_per_tick") {
		cfg.Simulation.MaxMessagesPerTick = raw.Simulation.MaxMessagesPerTick
	}
	if meta.IsDefined("simulation", "spawn_point") {
		p := raw.Simulation.SpawnPoint
		cfg.Simulation.SpawnPoint = message.Vec3{X: p[0], Y: p[1], Z: p[2]}
	}
	if meta.IsDefined("simulation", "position_send_hz") {
		cfg.Simulation.PositionSendHz = raw.Simulation.PositionSendHz
	}

	if meta.IsDefined("projectile", "local_speed") {
		cfg.Projectile.LocalSpeed = raw.Projectile.LocalSpeed
	}
	if meta.IsDefined("projectile", "replica_speed") {
		cfg.Projectile.ReplicaSpeed = raw.Projectile.ReplicaSpeed
	}
	if meta.IsDefined("projectile", "lifetime") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Projectile.Lifetime))
		if err != nil {
			return Settings{}, fmt.Errorf("parse projectile.lifetime: %w", err)
		}
		cfg.Projectile.Lifetime = d
	}

	if meta.IsDefined("connect", "initial_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Connect.InitialDelay))
		if err != nil {
			return Settings{}, fmt.Errorf("parse connect.initial_delay: %w", err)
		}
		cfg.Connect.InitialDelay = d
	}
	if meta.IsDefined("connect", "multiplier") {
		cfg.Connect.Multiplier = raw.Connect.Multiplier
	}
	if meta.IsDefined("connect", "max_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Connect.MaxDelay))
		if err != nil {
			return Settings{}, fmt.Errorf("parse connect.max_delay: %w", err)
		}
		cfg.Connect.MaxDelay = d
	}
	if meta.IsDefined("connect", "max_attempts") {
		cfg.Connect.MaxAttempts = raw.Connect.MaxAttempts
	}

	return cfg, nil
}

// LoadDotenv reads a .env file into the process environment. A missing file is
// not an error.
func LoadDotenv(path string) error {
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnvOverrides layers PEERSYNC_* variables over cfg. lookup is usually
// os.Getenv.
func ApplyEnvOverrides(cfg *Settings, lookup func(string) string) error {
	if raw := strings.TrimSpace(lookup(EnvIsHost)); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvIsHost, err)
		}
		cfg.IsHost = v
	}
	if raw := strings.TrimSpace(lookup(EnvListenAddress)); raw != "" {
		cfg.Network.ListenAddress = raw
	}
	if raw := strings.TrimSpace(lookup(EnvHostAddress)); raw != "" {
		cfg.Network.HostAddress = raw
	}
	if raw := strings.TrimSpace(lookup(EnvMaxClients)); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvMaxClients, err)
		}
		cfg.Network.MaxClients = v
	}
	if raw := strings.TrimSpace(lookup(EnvTickHz)); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvTickHz, err)
		}
		cfg.Simulation.TickHz = v
	}
	if raw := strings.TrimSpace(lookup(EnvWebtransportAddress)); raw != "" {
		cfg.Network.WebtransportAddress = raw
	}
	if raw := strings.TrimSpace(lookup(EnvCertPath)); raw != "" {
		cfg.Network.CertPath = raw
	}
	if raw := strings.TrimSpace(lookup(EnvKeyPath)); raw != "" {
		cfg.Network.KeyPath = raw
	}
	return nil
}

func ValidateSettings(cfg Settings) error {
	if cfg.Simulation.TickHz <= 0 {
		return fmt.Errorf("simulation.tick_hz must be > 0, got %d", cfg.Simulation.TickHz)
	}
	if cfg.Simulation.MaxMessagesPerTick <= 0 {
		return fmt.Errorf("simulation.max_messages_per_tick must be > 0, got %d", cfg.Simulation.MaxMessagesPerTick)
	}
	if cfg.Simulation.PositionSendHz <= 0 {
		return fmt.Errorf("simulation.position_send_hz must be > 0")
	}
	if cfg.Network.MaxClients <= 0 {
		return fmt.Errorf("network.max_clients must be > 0, got %d", cfg.Network.MaxClients)
	}
	if cfg.Network.MaxMessageSize < message.MaxPayloadSize {
		return fmt.Errorf("network.max_message_size must be at least %d, got %d", message.MaxPayloadSize, cfg.Network.MaxMessageSize)
	}
	if !strings.HasPrefix(cfg.Network.Endpoint, "/") {
		return fmt.Errorf("network.endpoint must start with '/', got %q", cfg.Network.Endpoint)
	}
	if strings.TrimSpace(cfg.Network.HostAddress) == "" {
		return fmt.Errorf("network.host_address is required")
	}
	if cfg.IsHost && strings.TrimSpace(cfg.Network.ListenAddress) == "" {
		return fmt.Errorf("network.listen_address is required when hosting")
	}
	if cfg.Network.WebtransportAddress != "" && (cfg.Network.CertPath == "" || cfg.Network.KeyPath == "") {
		return fmt.Errorf("network.cert_path and network.key_path are required for WebTransport")
	}
	if cfg.Projectile.Lifetime <= 0 {
		return fmt.Errorf("projectile.lifetime must be > 0")
	}
	if cfg.Connect.MaxAttempts <= 0 {
		return fmt.Errorf("connect.max_attempts must be > 0")
	}
	return nil
}
