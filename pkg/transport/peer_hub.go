package transport

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sessamekesh/peersync/internal"
	"github.com/sessamekesh/peersync/internal/observability"
	"github.com/sessamekesh/peersync/pkg/message"
	"go.uber.org/zap"
)

type PeerEventKind uint8

const (
	PeerEventKind_Connected PeerEventKind = iota
	PeerEventKind_Disconnected
)

func (k PeerEventKind) String() string {
	if k == PeerEventKind_Connected {
		return "Connected"
	}
	return "Disconnected"
}

type PeerEvent struct {
	Kind PeerEventKind
	Peer message.PeerId
}

type ProtocolMismatchError struct {
	Expected uint64
	Actual   uint64
}

func (e *ProtocolMismatchError) Error() string {
	return fmt.Sprintf("Client protocol id %d does not match host protocol id %d", e.Actual, e.Expected)
}

type HubClosedError struct{}

func (e *HubClosedError) Error() string {
	return "Peer hub is closed"
}

type PeerHubParams struct {
	ProtocolId uint64
	MaxPeers   int

	Logger *zap.Logger
}

// peerLinkQueues is the mutex boundary between a connection's goroutines and
// the tick that drains it.
type peerLinkQueues struct {
	mut_inbox sync.Mutex
	inbox     [][]byte

	mut_outbox sync.Mutex
	outbox     [][]byte
	wake       chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

func (q *peerLinkQueues) pushOutgoing(payload []byte) {
	q.mut_outbox.Lock()
	q.outbox = append(q.outbox, payload)
	q.mut_outbox.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *peerLinkQueues) shutdown() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}

// PeerHub is the host side of every connection, whatever carries it. Transport
// goroutines push into it through a PeerLink; the host tick pulls from it
// through the relay.HostTransport methods.
type PeerHub struct {
	protocolId uint64
	store      *internal.PeerStore

	mut_events sync.Mutex
	events     []PeerEvent

	mut_links sync.RWMutex
	links     map[message.PeerId]*peerLinkQueues
	closed    bool

	log *zap.Logger
}

func CreatePeerHub(params PeerHubParams) *PeerHub {
	logger := observability.OrDevelopment(params.Logger)

	return &PeerHub{
		protocolId: params.ProtocolId,
		store:      internal.CreatePeerStore(params.MaxPeers),
		events:     make([]PeerEvent, 0, 8),
		links:      make(map[message.PeerId]*peerLinkQueues),
		log:        logger.With(zap.String("component", "PeerHub")),
	}
}

func (hub *PeerHub) ProtocolId() uint64 {
	return hub.protocolId
}

// Admit decides a handshake. On success the peer is connected and its
// Connected event is queued for the next tick.
func (hub *PeerHub) Admit(id message.PeerId, protocolId uint64, handlerName string) (*PeerLink, error) {
	log := hub.log.With(zap.Uint64("peerId", uint64(id)), zap.String("handler", handlerName))

	if protocolId != hub.protocolId {
		observability.RecordVerdict(handlerName, false)
		return nil, &ProtocolMismatchError{Expected: hub.protocolId, Actual: protocolId}
	}

	queues := &peerLinkQueues{
		inbox:  make([][]byte, 0, 16),
		outbox: make([][]byte, 0, 16),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	err := func() error {
		hub.mut_links.Lock()
		defer hub.mut_links.Unlock()

		if hub.closed {
			return &HubClosedError{}
		}

		if err := hub.store.CreatePeer(uint64(id), handlerName, time.Now().UnixMilli()); err != nil {
			return err
		}

		hub.links[id] = queues
		return nil
	}()

	if err != nil {
		observability.RecordVerdict(handlerName, false)
		log.Warn("Refusing peer", zap.Error(err))
		return nil, err
	}

	hub.pushEvent(PeerEvent{Kind: PeerEventKind_Connected, Peer: id})
	observability.RecordVerdict(handlerName, true)
	observability.PeerAttached(handlerName)
	log.Info("Peer admitted")

	return &PeerLink{hub: hub, id: id, queues: queues}, nil
}

func (hub *PeerHub) pushEvent(ev PeerEvent) {
	hub.mut_events.Lock()
	defer hub.mut_events.Unlock()
	hub.events = append(hub.events, ev)
}

// forget removes a peer from the store, reporting which handler carried it and
// how long it had been silent. Callers hold mut_links.
func (hub *PeerHub) forget(id message.PeerId) []zap.Field {
	fields := []zap.Field{zap.Uint64("peerId", uint64(id))}

	handlerName, err := hub.store.GetHandlerName(uint64(id))
	if err != nil {
		return fields
	}
	observability.PeerDetached(handlerName)
	fields = append(fields, zap.String("handler", handlerName))

	if lastRecv, err := hub.store.GetLastRecvTimestamp(uint64(id)); err == nil {
		idle := time.Duration(time.Now().UnixMilli()-lastRecv) * time.Millisecond
		fields = append(fields, zap.Duration("idle", idle))
	}

	hub.store.RemovePeer(uint64(id))
	return fields
}

func (hub *PeerHub) drop(id message.PeerId, queues *peerLinkQueues) {
	var fields []zap.Field
	removed := func() bool {
		hub.mut_links.Lock()
		defer hub.mut_links.Unlock()

		current, has := hub.links[id]
		if !has || current != queues {
			return false
		}
		delete(hub.links, id)
		fields = hub.forget(id)
		return true
	}()

	queues.shutdown()

	if removed {
		hub.pushEvent(PeerEvent{Kind: PeerEventKind_Disconnected, Peer: id})
		hub.log.Info("Peer disconnected", fields...)
	}
}

func (hub *PeerHub) PeerCount() int {
	return hub.store.Count()
}

//
// relay.HostTransport

func (hub *PeerHub) PollEvent() (PeerEvent, bool) {
	hub.mut_events.Lock()
	defer hub.mut_events.Unlock()

	if len(hub.events) == 0 {
		return PeerEvent{}, false
	}
	ev := hub.events[0]
	hub.events = hub.events[1:]
	return ev, true
}

func (hub *PeerHub) ConnectedPeers() []message.PeerId {
	hub.mut_links.RLock()
	defer hub.mut_links.RUnlock()

	ids := make([]message.PeerId, 0, len(hub.links))
	for id := range hub.links {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (hub *PeerHub) TryReceive(peer message.PeerId) ([]byte, bool) {
	hub.mut_links.RLock()
	queues, has := hub.links[peer]
	hub.mut_links.RUnlock()
	if !has {
		return nil, false
	}

	queues.mut_inbox.Lock()
	defer queues.mut_inbox.Unlock()

	if len(queues.inbox) == 0 {
		return nil, false
	}
	payload := queues.inbox[0]
	queues.inbox[0] = nil
	queues.inbox = queues.inbox[1:]
	return payload, true
}

func (hub *PeerHub) Send(peer message.PeerId, payload []byte) error {
	hub.mut_links.RLock()
	defer hub.mut_links.RUnlock()

	queues, has := hub.links[peer]
	if !has {
		return &internal.MissingPeerIdError{Id: uint64(peer)}
	}
	queues.pushOutgoing(payload)
	return nil
}

func (hub *PeerHub) Broadcast(payload []byte) error {
	hub.mut_links.RLock()
	defer hub.mut_links.RUnlock()

	for _, queues := range hub.links {
		queues.pushOutgoing(payload)
	}
	return nil
}

func (hub *PeerHub) BroadcastExcept(except message.PeerId, payload []byte) error {
	hub.mut_links.RLock()
	defer hub.mut_links.RUnlock()

	for id, queues := range hub.links {
		if id == except {
			continue
		}
		queues.pushOutgoing(payload)
	}
	return nil
}

// Close disconnects every peer and refuses new ones.
func (hub *PeerHub) Close() error {
	hub.mut_links.Lock()
	defer hub.mut_links.Unlock()

	if hub.closed {
		return nil
	}
	hub.closed = true
	for id, queues := range hub.links {
		queues.shutdown()
		hub.forget(id)
	}
	hub.links = make(map[message.PeerId]*peerLinkQueues)
	hub.log.Info("Peer hub closed")
	return nil
}

// PeerLink is a connection's handle into the hub.
type PeerLink struct {
	hub    *PeerHub
	id     message.PeerId
	queues *peerLinkQueues
}

func (link *PeerLink) PeerId() message.PeerId {
	return link.id
}

// Deliver queues a payload received from the peer.
func (link *PeerLink) Deliver(payload []byte) {
	link.queues.mut_inbox.Lock()
	link.queues.inbox = append(link.queues.inbox, payload)
	link.queues.mut_inbox.Unlock()

	if err := link.hub.store.SetRecvTimestamp(uint64(link.id), time.Now().UnixMilli()); err != nil {
		link.hub.log.Debug("Received data for peer no longer in store", zap.Uint64("peerId", uint64(link.id)))
	}
}

// Wake fires whenever outgoing payloads are waiting.
func (link *PeerLink) Wake() <-chan struct{} {
	return link.queues.wake
}

// Done is closed once the hub stops serving this peer.
func (link *PeerLink) Done() <-chan struct{} {
	return link.queues.done
}

// TakeOutgoing removes and returns every payload queued for the peer.
func (link *PeerLink) TakeOutgoing() [][]byte {
	link.queues.mut_outbox.Lock()
	defer link.queues.mut_outbox.Unlock()

	out := link.queues.outbox
	link.queues.outbox = make([][]byte, 0, 16)
	return out
}

func (link *PeerLink) popOutgoing() ([]byte, bool) {
	link.queues.mut_outbox.Lock()
	defer link.queues.mut_outbox.Unlock()

	if len(link.queues.outbox) == 0 {
		return nil, false
	}
	payload := link.queues.outbox[0]
	link.queues.outbox[0] = nil
	link.queues.outbox = link.queues.outbox[1:]
	return payload, true
}

// Close removes the peer from the hub and queues its Disconnected event. Safe
// to call more than once.
func (link *PeerLink) Close() {
	link.hub.drop(link.id, link.queues)
}
