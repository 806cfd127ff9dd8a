package relay

import (
	"github.com/sessamekesh/peersync/pkg/message"
	"github.com/sessamekesh/peersync/pkg/transport"
)

// HostTransport is the host's side of every peer channel. All methods are
// non-blocking; TryReceive returns payloads from one peer in the order that
// peer sent them.
type HostTransport interface {
	PollEvent() (transport.PeerEvent, bool)
	ConnectedPeers() []message.PeerId
	TryReceive(peer message.PeerId) ([]byte, bool)
	Send(peer message.PeerId, payload []byte) error
	Broadcast(payload []byte) error
	BroadcastExcept(peer message.PeerId, payload []byte) error
	Close() error
}

type ClientTransport interface {
	PeerId() message.PeerId
	TryReceive() ([]byte, bool)
	Send(payload []byte) error
	Close() error
}

var (
	_ HostTransport   = (*transport.PeerHub)(nil)
	_ ClientTransport = (*transport.WebsocketClient)(nil)
	_ ClientTransport = (*transport.LoopbackClient)(nil)
)
