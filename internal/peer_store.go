package internal

import (
	"fmt"
	"sync"
)

type DuplicatePeerIdError struct {
	Id uint64
}

func (e *DuplicatePeerIdError) Error() string {
	return fmt.Sprintf("Attempted to register peer with duplicate ID %d", e.Id)
}

type MissingPeerIdError struct {
	Id uint64
}

func (e *MissingPeerIdError) Error() string {
	return fmt.Sprintf("Missing peer with id=%d", e.Id)
}

type TooManyPeersError struct {
	MaxConnections int
}

func (e *TooManyPeersError) Error() string {
	return fmt.Sprintf("Too many peers are connected (max %d) - cannot accept new peer", e.MaxConnections)
}

type PeerConnectionMetadata struct {
	Mut             sync.RWMutex
	HandlerName     string
	LastRecvMsgTime int64
}

// PeerStore tracks transport-level bookkeeping for every peer that has started
// a handshake. It is safe for use from transport goroutines.
type PeerStore struct {
	MaxConnections int

	mut_peerConnections sync.RWMutex
	peerConnections     map[uint64]*PeerConnectionMetadata
}

func CreatePeerStore(maxConnections int) *PeerStore {
	return &PeerStore{
		MaxConnections:      maxConnections,
		mut_peerConnections: sync.RWMutex{},
		peerConnections:     make(map[uint64]*PeerConnectionMetadata),
	}
}

func (store *PeerStore) Count() int {
	store.mut_peerConnections.RLock()
	defer store.mut_peerConnections.RUnlock()

	return len(store.peerConnections)
}

func (store *PeerStore) CreatePeer(peerId uint64, handlerName string, timestamp int64) error {
	store.mut_peerConnections.Lock()
	defer store.mut_peerConnections.Unlock()

	if _, has := store.peerConnections[peerId]; has {
		return &DuplicatePeerIdError{Id: peerId}
	}

	if store.MaxConnections > 0 && len(store.peerConnections) >= store.MaxConnections {
		return &TooManyPeersError{MaxConnections: store.MaxConnections}
	}

	store.peerConnections[peerId] = &PeerConnectionMetadata{
		Mut:             sync.RWMutex{},
		HandlerName:     handlerName,
		LastRecvMsgTime: timestamp,
	}

	return nil
}

func (store *PeerStore) RemovePeer(peerId uint64) {
	store.mut_peerConnections.Lock()
	defer store.mut_peerConnections.Unlock()
	delete(store.peerConnections, peerId)
}

func (store *PeerStore) GetHandlerName(peerId uint64) (string, error) {
	store.mut_peerConnections.RLock()
	defer store.mut_peerConnections.RUnlock()

	connection, has := store.peerConnections[peerId]
	if !has {
		return "", &MissingPeerIdError{Id: peerId}
	}

	connection.Mut.RLock()
	defer connection.Mut.RUnlock()

	return connection.HandlerName, nil
}

func (store *PeerStore) SetRecvTimestamp(peerId uint64, timestamp int64) error {
	store.mut_peerConnections.RLock()
	defer store.mut_peerConnections.RUnlock()

	connection, has := store.peerConnections[peerId]
	if !has {
		return &MissingPeerIdError{Id: peerId}
	}

	connection.Mut.Lock()
	defer connection.Mut.Unlock()

	connection.LastRecvMsgTime = timestamp
	return nil
}

func (store *PeerStore) GetLastRecvTimestamp(peerId uint64) (int64, error) {
	store.mut_peerConnections.RLock()
	defer store.mut_peerConnections.RUnlock()

	connection, has := store.peerConnections[peerId]
	if !has {
		return 0, &MissingPeerIdError{Id: peerId}
	}

	connection.Mut.RLock()
	defer connection.Mut.RUnlock()

	return connection.LastRecvMsgTime, nil
}
