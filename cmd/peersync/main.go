// Headless peersync process: hosts a session with --host, otherwise joins one.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sessamekesh/peersync/internal/config"
	"github.com/sessamekesh/peersync/internal/headless"
	"github.com/sessamekesh/peersync/internal/observability"
	"github.com/sessamekesh/peersync/pkg/engine"
	"github.com/sessamekesh/peersync/pkg/message"
	"github.com/sessamekesh/peersync/pkg/relay"
	"github.com/sessamekesh/peersync/pkg/session"
	"github.com/sessamekesh/peersync/pkg/transport"
	"go.uber.org/zap"
)

func main() {
	//
	// Flags
	configPath := flag.String("config", "", "Optional TOML settings file")
	envPath := flag.String("env", ".env", "Optional .env file loaded before reading PEERSYNC_* variables")
	isHost := flag.Bool("host", false, "Host the session (this process also joins it as a player)")
	listenAddress := flag.String("listen", "", "Address the WebSocket host listens on (host only)")
	hostAddress := flag.String("connect", "", "host:port of the session host to join")
	tickHz := flag.Int("tick-hz", 0, "Simulation tick rate")
	clientId := flag.Uint64("id", 0, "Peer id to join with (defaults to the current time in milliseconds)")
	flag.Parse()

	if err := config.LoadDotenv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env file! %s\n", err.Error())
	}

	logger := observability.NewLogger()

	setFlags := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	settings, err := loadSettings(*configPath)
	if err == nil {
		if setFlags["host"] {
			settings.IsHost = *isHost
		}
		if setFlags["listen"] {
			settings.Network.ListenAddress = *listenAddress
		}
		if setFlags["connect"] {
			settings.Network.HostAddress = *hostAddress
		}
		if setFlags["tick-hz"] {
			settings.Simulation.TickHz = *tickHz
		}
		err = config.ValidateSettings(settings)
	}
	if err != nil {
		logger.Error("Invalid configuration", zap.Error(err))
		logger.Sync()
		os.Exit(2)
	}

	id := message.PeerId(time.Now().UnixMilli())
	if setFlags["id"] {
		id = message.PeerId(*clientId)
	}

	shutdownCtx, shutdownRelease := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	err = run(shutdownCtx, settings, id, logger)
	shutdownRelease()

	if err != nil {
		logger.Error("peersync exited with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

func loadSettings(path string) (config.Settings, error) {
	settings := config.DefaultSettings()
	if path != "" {
		loaded, err := config.LoadSettingsFile(path)
		if err != nil {
			return config.Settings{}, err
		}
		settings = loaded
	}
	if err := config.ApplyEnvOverrides(&settings, os.Getenv); err != nil {
		return config.Settings{}, err
	}
	return settings, nil
}

func run(ctx context.Context, settings config.Settings, id message.PeerId, logger *zap.Logger) error {
	logger = logger.With(zap.Uint64("localId", uint64(id)))

	hostFactory := func() (relay.HostTransport, error) {
		host, err := startHost(ctx, settings, logger)
		if err != nil {
			return nil, err
		}
		return host, nil
	}

	connect := func(ctx context.Context) (relay.ClientTransport, error) {
		return transport.DialWebsocketClient(ctx, transport.WebsocketClientParams{
			HostAddress: settings.Network.HostAddress,
			Endpoint:    settings.Network.Endpoint,
			ClientId:    id,
			ProtocolId:  settings.Network.ProtocolId,
			Backoff: transport.BackoffParams{
				InitialDelay: settings.Connect.InitialDelay,
				Multiplier:   settings.Connect.Multiplier,
				MaxDelay:     settings.Connect.MaxDelay,
				MaxAttempts:  settings.Connect.MaxAttempts,
			},
			Logger: logger,
		})
	}

	bot := headless.CreateBot(headless.BotParams{
		LocalId:      id,
		Center:       settings.Simulation.SpawnPoint,
		Radius:       3,
		AngularSpeed: math.Pi / 4,
		FireInterval: 2 * time.Second,
		Logger:       logger,
	})

	e, err := engine.CreateEngine(engine.EngineParams{
		TickRate:             time.Second / time.Duration(settings.Simulation.TickHz),
		Session:              session.CreateHostSession(settings.IsHost, logger),
		HostTransportFactory: hostFactory,
		SpawnPoint:           settings.Simulation.SpawnPoint,
		MaxMessagesPerTick:   settings.Simulation.MaxMessagesPerTick,
		Connect:              connect,
		Presenter:            headless.CreateLoggingPresenter(logger),
		Simulation:           bot,
		PositionSendHz:       settings.Simulation.PositionSendHz,
		LocalSpeed:           settings.Projectile.LocalSpeed,
		ReplicaSpeed:         settings.Projectile.ReplicaSpeed,
		Lifetime:             settings.Projectile.Lifetime,
		Logger:               logger,
	})
	if err != nil {
		return err
	}
	bot.Watch(e.Projectiles())

	return e.Start(ctx)
}
