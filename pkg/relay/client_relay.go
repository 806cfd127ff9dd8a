package relay

import (
	"errors"
	"fmt"
	"time"

	"github.com/sessamekesh/peersync/internal/observability"
	"github.com/sessamekesh/peersync/pkg/message"
	"github.com/sessamekesh/peersync/pkg/mirror"
	"github.com/sessamekesh/peersync/pkg/transport"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ConnectionLostError reports that the channel to the host has gone away.
type ConnectionLostError struct {
	Cause error
}

func (e *ConnectionLostError) Error() string {
	return fmt.Sprintf("Lost connection to host: %v", e.Cause)
}

func (e *ConnectionLostError) Unwrap() error {
	return e.Cause
}

type ClientRelayParams struct {
	Transport  ClientTransport
	Mirror     *mirror.Mirror
	Serializer message.MessageSerializer

	// PositionSendHz limits SendPosition. Zero means no limit.
	PositionSendHz float64
	Now            func() time.Time

	Logger *zap.Logger
}

// ClientRelay applies host messages to the local Mirror and sends local
// events to the host.
type ClientRelay struct {
	transport  ClientTransport
	mirror     *mirror.Mirror
	serializer message.MessageSerializer

	positionLimiter *rate.Limiter
	now             func() time.Time

	log *zap.Logger
}

func CreateClientRelay(params ClientRelayParams) *ClientRelay {
	logger := observability.OrDevelopment(params.Logger)
	now := params.Now
	if now == nil {
		now = time.Now
	}
	limit := rate.Inf
	if params.PositionSendHz > 0 {
		limit = rate.Limit(params.PositionSendHz)
	}

	return &ClientRelay{
		transport:       params.Transport,
		mirror:          params.Mirror,
		serializer:      params.Serializer,
		positionLimiter: rate.NewLimiter(limit, 1),
		now:             now,
		log: logger.With(
			zap.String("component", "ClientRelay"),
			zap.Uint64("peerId", uint64(params.Transport.PeerId())),
		),
	}
}

func (r *ClientRelay) PeerId() message.PeerId {
	return r.transport.PeerId()
}

func (r *ClientRelay) Mirror() *mirror.Mirror {
	return r.mirror
}

func (r *ClientRelay) Close() error {
	return r.transport.Close()
}

// Tick applies everything the host has sent so far.
func (r *ClientRelay) Tick() error {
	for {
		payload, ok := r.transport.TryReceive()
		if !ok {
			break
		}

		msg, err := r.serializer.Parse(payload)
		if err != nil {
			observability.RecordMalformed(observability.DirectionHostToClient)
			r.log.Warn("Dropping malformed payload from host", zap.Int("size", len(payload)), zap.Error(err))
			continue
		}

		for _, reply := range r.mirror.ApplyServerMessage(msg) {
			if err := r.send(reply); err != nil {
				return err
			}
		}
	}

	observability.SetMirrorSize(r.mirror.Len())
	return nil
}

func (r *ClientRelay) send(msg message.Message) error {
	payload, err := r.serializer.Serialize(msg)
	if err != nil {
		return fmt.Errorf("serialize %s: %w", msg.Kind(), err)
	}
	if err := r.transport.Send(payload); err != nil {
		var closed *transport.ConnectionClosedError
		if errors.As(err, &closed) {
			return &ConnectionLostError{Cause: err}
		}
		return fmt.Errorf("send %s: %w", msg.Kind(), err)
	}
	return nil
}

// SendPosition reports the local player's absolute position. Calls faster
// than the configured rate are dropped; the result says whether it was sent.
func (r *ClientRelay) SendPosition(position message.Vec3) (bool, error) {
	if !r.positionLimiter.AllowN(r.now(), 1) {
		return false, nil
	}
	return true, r.send(message.PlayerMoved{Id: r.transport.PeerId(), Position: position})
}

func (r *ClientRelay) SendProjectile(position message.Vec3, direction message.Vec3) error {
	return r.send(message.ProjectileSpawned{Id: r.transport.PeerId(), Position: position, Direction: direction})
}

// SendDeath announces the local player's death. Nothing in the hit path calls
// it yet.
func (r *ClientRelay) SendDeath() error {
	return r.send(message.PlayerDeath{Id: r.transport.PeerId()})
}

func (r *ClientRelay) SendTest(text string) error {
	return r.send(message.TestMessage{Text: text})
}
