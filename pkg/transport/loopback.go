package transport

import (
	"sync"

	"github.com/sessamekesh/peersync/pkg/message"
)

const loopbackHandlerName = "Loopback"

// Loopback connects in-process clients straight to a PeerHub, with the same
// admission rules and queues a network transport would get.
type Loopback struct {
	hub *PeerHub
}

func CreateLoopback(hub *PeerHub) *Loopback {
	return &Loopback{hub: hub}
}

func (lb *Loopback) Hub() *PeerHub {
	return lb.hub
}

// Connect runs the handshake for id. A refusal comes back as a
// ConnectionRefusedError just like it would over the network.
func (lb *Loopback) Connect(id message.PeerId, protocolId uint64) (*LoopbackClient, error) {
	link, err := lb.hub.Admit(id, protocolId, loopbackHandlerName)
	if err != nil {
		return nil, &ConnectionRefusedError{Reason: err.Error()}
	}
	return &LoopbackClient{link: link}, nil
}

type LoopbackClient struct {
	link *PeerLink

	mut_closed sync.Mutex
	closed     bool
}

func (c *LoopbackClient) PeerId() message.PeerId {
	return c.link.PeerId()
}

func (c *LoopbackClient) TryReceive() ([]byte, bool) {
	return c.link.popOutgoing()
}

func (c *LoopbackClient) Send(payload []byte) error {
	c.mut_closed.Lock()
	defer c.mut_closed.Unlock()

	if c.closed {
		return &ConnectionClosedError{}
	}
	select {
	case <-c.link.Done():
		return &ConnectionClosedError{}
	default:
	}

	c.link.Deliver(payload)
	return nil
}

func (c *LoopbackClient) Close() error {
	c.mut_closed.Lock()
	defer c.mut_closed.Unlock()

	c.closed = true
	c.link.Close()
	return nil
}
