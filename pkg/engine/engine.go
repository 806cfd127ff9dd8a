package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/sessamekesh/peersync/internal/observability"
	"github.com/sessamekesh/peersync/pkg/avatar"
	"github.com/sessamekesh/peersync/pkg/lobby"
	"github.com/sessamekesh/peersync/pkg/message"
	"github.com/sessamekesh/peersync/pkg/mirror"
	"github.com/sessamekesh/peersync/pkg/projectile"
	"github.com/sessamekesh/peersync/pkg/relay"
	"github.com/sessamekesh/peersync/pkg/session"
	"go.uber.org/zap"
)

// FireEvent is one shot fired by the local player.
type FireEvent struct {
	Origin message.Vec3
	Aim    message.Vec3
}

// Simulation is the local game: movement, input and physics. The engine only
// reads from it.
type Simulation interface {
	Position() message.Vec3
	DrainFireEvents() []FireEvent
	DrainCollisions() []avatar.CollisionEvent
}

type ClientConnector func(ctx context.Context) (relay.ClientTransport, error)

type EngineParams struct {
	TickRate time.Duration

	Session              *session.HostSession
	HostTransportFactory session.HostTransportFactory
	SpawnPoint           message.Vec3
	MaxMessagesPerTick   int

	// Connect dials the host. It runs in the background so ticks keep going
	// while the connection is retried.
	Connect        ClientConnector
	Presenter      mirror.Presenter
	Simulation     Simulation
	PositionSendHz float64

	LocalSpeed   float32
	ReplicaSpeed float32
	Lifetime     time.Duration

	Rng    *rand.Rand
	Logger *zap.Logger
}

type connectResult struct {
	transport relay.ClientTransport
	err       error
}

// Engine runs one process's tick: host relay when hosting, client relay,
// local simulation hooks and the projectile field.
type Engine struct {
	params     EngineParams
	serializer message.MessageSerializer

	hostRelay   *HostRelayHandle
	clientRelay *relay.ClientRelay
	projectiles *projectile.Field
	avatar      *avatar.Avatar

	connecting bool
	connected  chan connectResult
	clientLost bool

	log *zap.Logger
}

// HostRelayHandle groups what only exists on the hosting process.
type HostRelayHandle struct {
	Relay *relay.HostRelay
	Lobby *lobby.Lobby
}

func CreateEngine(params EngineParams) (*Engine, error) {
	logger := observability.OrDevelopment(params.Logger)
	if params.Session == nil {
		return nil, errors.New("engine needs a host session")
	}
	if params.Session.IsHost() && params.HostTransportFactory == nil {
		return nil, errors.New("hosting engine needs a host transport factory")
	}
	if params.Connect == nil || params.Presenter == nil || params.Simulation == nil {
		return nil, errors.New("engine needs a connector, presenter and simulation")
	}
	if params.TickRate <= 0 {
		params.TickRate = time.Second / 60
	}
	if params.LocalSpeed <= 0 {
		params.LocalSpeed = projectile.DefaultLocalSpeed
	}
	if params.ReplicaSpeed <= 0 {
		params.ReplicaSpeed = projectile.DefaultReplicaSpeed
	}
	if params.Rng == nil {
		params.Rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Engine{
		params:     params,
		serializer: message.CreateMessageSerializer(),
		projectiles: projectile.CreateField(projectile.FieldParams{
			Lifetime: params.Lifetime,
			Logger:   logger,
		}),
		avatar:    avatar.CreateAvatar(logger),
		connected: make(chan connectResult, 1),
		log:       logger.With(zap.String("component", "Engine")),
	}, nil
}

func (e *Engine) Projectiles() *projectile.Field {
	return e.projectiles
}

func (e *Engine) Avatar() *avatar.Avatar {
	return e.avatar
}

// Host is nil on clients and until the host transport is up.
func (e *Engine) Host() *HostRelayHandle {
	return e.hostRelay
}

// Client is nil until the connection to the host is admitted, and again
// after that connection is lost.
func (e *Engine) Client() *relay.ClientRelay {
	return e.clientRelay
}

// ClientLost reports whether this engine left the session because the host
// connection dropped.
func (e *Engine) ClientLost() bool {
	return e.clientLost
}

// Start ticks at the configured rate until ctx is cancelled or a tick fails.
func (e *Engine) Start(ctx context.Context) error {
	ticker := time.NewTicker(e.params.TickRate)
	defer ticker.Stop()

	defer e.shutdown()

	last := time.Now()
	e.log.Info("Starting engine", zap.Duration("tickRate", e.params.TickRate), zap.Bool("isHost", e.params.Session.IsHost()))

	for {
		select {
		case <-ctx.Done():
			e.log.Info("Engine stopping")
			return nil
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			if err := e.Step(ctx, elapsed); err != nil {
				e.log.Error("Engine tick failed", zap.Error(err))
				return err
			}
		}
	}
}

// Step runs one tick.
func (e *Engine) Step(ctx context.Context, elapsed time.Duration) error {
	//
	// Host side
	if err := e.ensureHost(); err != nil {
		return err
	}
	if e.hostRelay != nil {
		if err := e.hostRelay.Relay.Tick(); err != nil {
			return fmt.Errorf("host relay: %w", err)
		}
	}

	//
	// Client side
	if err := e.ensureClient(ctx); err != nil {
		return err
	}
	if e.clientRelay != nil {
		err := e.clientRelay.Tick()
		if err == nil {
			err = e.publishLocalState()
		}
		var lost *relay.ConnectionLostError
		if errors.As(err, &lost) {
			e.dropClient(err)
		} else if err != nil {
			return fmt.Errorf("client relay: %w", err)
		}
	}

	e.projectiles.Tick(elapsed)
	return nil
}

func (e *Engine) ensureHost() error {
	if e.hostRelay != nil || !e.params.Session.IsHost() {
		return nil
	}

	transport, err := e.params.Session.EnsureHostTransport(e.params.HostTransportFactory)
	if err != nil {
		return err
	}

	l := lobby.CreateLobby(lobby.LobbyParams{SpawnPoint: e.params.SpawnPoint, Logger: e.log})
	e.hostRelay = &HostRelayHandle{
		Lobby: l,
		Relay: relay.CreateHostRelay(relay.HostRelayParams{
			Transport:          transport,
			Lobby:              l,
			Serializer:         e.serializer,
			MaxMessagesPerTick: e.params.MaxMessagesPerTick,
			Logger:             e.log,
		}),
	}
	return nil
}

func (e *Engine) ensureClient(ctx context.Context) error {
	if e.clientRelay != nil || e.clientLost {
		return nil
	}

	if !e.connecting {
		e.connecting = true
		go func() {
			transport, err := e.params.Connect(ctx)
			e.connected <- connectResult{transport: transport, err: err}
		}()
		return nil
	}

	select {
	case res := <-e.connected:
		if res.err != nil {
			return fmt.Errorf("connect to host: %w", res.err)
		}
		e.attachClient(res.transport)
	default:
	}
	return nil
}

func (e *Engine) attachClient(t relay.ClientTransport) {
	m := mirror.CreateMirror(mirror.MirrorParams{
		LocalId:      t.PeerId(),
		Presenter:    e.params.Presenter,
		Projectiles:  e.projectiles,
		ReplicaSpeed: e.params.ReplicaSpeed,
		Logger:       e.log,
	})
	e.clientRelay = relay.CreateClientRelay(relay.ClientRelayParams{
		Transport:      t,
		Mirror:         m,
		Serializer:     e.serializer,
		PositionSendHz: e.params.PositionSendHz,
		Logger:         e.log,
	})
	e.log.Info("Joined session", zap.Uint64("peerId", uint64(t.PeerId())))
}

// dropClient leaves the session after the host went away. The local
// simulation keeps ticking. Peer ids are never reused, so there is no rejoin.
func (e *Engine) dropClient(err error) {
	e.log.Warn("Lost connection to host, leaving session", zap.Error(err))
	if cerr := e.clientRelay.Close(); cerr != nil {
		e.log.Warn("Error closing client transport", zap.Error(cerr))
	}
	e.clientRelay = nil
	e.clientLost = true
}

func (e *Engine) publishLocalState() error {
	if _, err := e.clientRelay.SendPosition(e.params.Simulation.Position()); err != nil {
		return err
	}

	for _, shot := range e.params.Simulation.DrainFireEvents() {
		direction := projectile.AimWithSpread(shot.Aim, e.params.Rng)
		e.projectiles.Spawn(e.clientRelay.PeerId(), shot.Origin, direction, e.params.LocalSpeed)
		if err := e.clientRelay.SendProjectile(shot.Origin, direction); err != nil {
			return err
		}
	}

	for _, ev := range e.params.Simulation.DrainCollisions() {
		e.avatar.OnCollision(ev)
	}
	// Death stays local: nothing is sent to the host.
	e.avatar.ConsumeDeath()
	return nil
}

func (e *Engine) shutdown() {
	if e.clientRelay == nil && e.connecting {
		select {
		case res := <-e.connected:
			if res.err == nil {
				res.transport.Close()
			}
		default:
		}
	}
	if e.clientRelay != nil {
		if err := e.clientRelay.Close(); err != nil {
			e.log.Warn("Error closing client transport", zap.Error(err))
		}
	}
	if err := e.params.Session.Close(); err != nil {
		e.log.Warn("Error closing host transport", zap.Error(err))
	}
}
