package relay

import (
	"errors"
	"fmt"

	"github.com/sessamekesh/peersync/internal"
	"github.com/sessamekesh/peersync/internal/observability"
	"github.com/sessamekesh/peersync/pkg/lobby"
	"github.com/sessamekesh/peersync/pkg/message"
	"github.com/sessamekesh/peersync/pkg/transport"
	"go.uber.org/zap"
)

const DefaultMaxMessagesPerTick = 1024

type HostRelayParams struct {
	Transport  HostTransport
	Lobby      *lobby.Lobby
	Serializer message.MessageSerializer

	// MaxMessagesPerTick caps how many client messages one Tick handles. The
	// rest stay queued in the transport for the next tick.
	MaxMessagesPerTick int

	Logger *zap.Logger
}

// HostRelay moves messages from clients through the Lobby and back out.
type HostRelay struct {
	transport  HostTransport
	lobby      *lobby.Lobby
	serializer message.MessageSerializer
	maxPerTick int

	nextStart int

	log *zap.Logger
}

func CreateHostRelay(params HostRelayParams) *HostRelay {
	logger := observability.OrDevelopment(params.Logger)
	maxPerTick := params.MaxMessagesPerTick
	if maxPerTick <= 0 {
		maxPerTick = DefaultMaxMessagesPerTick
	}

	return &HostRelay{
		transport:  params.Transport,
		lobby:      params.Lobby,
		serializer: params.Serializer,
		maxPerTick: maxPerTick,
		log:        logger.With(zap.String("component", "HostRelay")),
	}
}

func (r *HostRelay) Lobby() *lobby.Lobby {
	return r.lobby
}

// Tick handles every pending connect/disconnect, then up to the per-tick cap
// of client messages, round-robin across peers.
func (r *HostRelay) Tick() error {
	//
	// Presence first
	for {
		ev, ok := r.transport.PollEvent()
		if !ok {
			break
		}

		var deliveries []message.Delivery
		switch ev.Kind {
		case transport.PeerEventKind_Connected:
			deliveries = r.lobby.OnPeerConnected(ev.Peer)
		case transport.PeerEventKind_Disconnected:
			deliveries = r.lobby.OnPeerDisconnected(ev.Peer)
		}
		if err := r.dispatch(deliveries); err != nil {
			return err
		}
	}

	//
	// Client messages
	peers := r.transport.ConnectedPeers()
	if len(peers) > 0 {
		start := r.nextStart % len(peers)
		r.nextStart = start + 1

		budget := r.maxPerTick
		for budget > 0 {
			progressed := false
			for i := 0; i < len(peers) && budget > 0; i++ {
				peer := peers[(start+i)%len(peers)]
				payload, ok := r.transport.TryReceive(peer)
				if !ok {
					continue
				}
				progressed = true
				budget--

				if err := r.handlePayload(peer, payload); err != nil {
					return err
				}
			}
			if !progressed {
				break
			}
		}

		if budget == 0 {
			observability.RecordDeferredDrain()
			r.log.Debug("Per-tick message cap reached, deferring the rest", zap.Int("cap", r.maxPerTick))
		}
	}

	observability.SetLobbySize(r.lobby.Len())
	return nil
}

func (r *HostRelay) handlePayload(peer message.PeerId, payload []byte) error {
	msg, err := r.serializer.Parse(payload)
	if err != nil {
		observability.RecordMalformed(observability.DirectionClientToHost)
		r.log.Warn("Dropping malformed payload",
			zap.Uint64("peerId", uint64(peer)),
			zap.Int("size", len(payload)),
			zap.Error(err))
		return nil
	}

	observability.RecordRelayed(observability.DirectionClientToHost, msg.Kind().String())
	return r.dispatch(r.lobby.ApplyClientMessage(peer, msg))
}

func (r *HostRelay) dispatch(deliveries []message.Delivery) error {
	for _, d := range deliveries {
		payload, err := r.serializer.Serialize(d.Message)
		if err != nil {
			return fmt.Errorf("serialize %s: %w", d.Message.Kind(), err)
		}

		switch d.Target.Kind {
		case message.TargetKind_Peer:
			err = r.transport.Send(d.Target.Peer, payload)
		case message.TargetKind_Broadcast:
			err = r.transport.Broadcast(payload)
		case message.TargetKind_BroadcastExcept:
			err = r.transport.BroadcastExcept(d.Target.Peer, payload)
		}

		var missing *internal.MissingPeerIdError
		if errors.As(err, &missing) {
			r.log.Debug("Peer left before delivery", zap.Uint64("peerId", missing.Id))
			continue
		}
		if err != nil {
			return fmt.Errorf("deliver %s: %w", d.Message.Kind(), err)
		}
		observability.RecordRelayed(observability.DirectionHostToClient, d.Message.Kind().String())
	}
	return nil
}
