package mirror

import (
	"sort"

	"github.com/sessamekesh/peersync/internal/observability"
	"github.com/sessamekesh/peersync/pkg/message"
	"go.uber.org/zap"
)

// AvatarHandle is whatever the presentation layer uses to find a remote avatar
// again.
type AvatarHandle uint64

type Presenter interface {
	SpawnAvatar(id message.PeerId, position message.Vec3) AvatarHandle
	MoveAvatar(handle AvatarHandle, position message.Vec3)
	DespawnAvatar(handle AvatarHandle)
}

type ProjectileSpawner interface {
	Spawn(owner message.PeerId, position message.Vec3, direction message.Vec3, speed float32) uint64
}

type MirrorParams struct {
	LocalId      message.PeerId
	Presenter    Presenter
	Projectiles  ProjectileSpawner
	ReplicaSpeed float32

	Logger *zap.Logger
}

type mirrorEntry struct {
	handle   AvatarHandle
	position message.Vec3
}

// Mirror is a client's replica of every remote player it has been told about.
// The local player is never mirrored. Not safe for concurrent use.
type Mirror struct {
	localId      message.PeerId
	presenter    Presenter
	projectiles  ProjectileSpawner
	replicaSpeed float32

	entries map[message.PeerId]*mirrorEntry

	log *zap.Logger
}

func CreateMirror(params MirrorParams) *Mirror {
	logger := observability.OrDevelopment(params.Logger)

	return &Mirror{
		localId:      params.LocalId,
		presenter:    params.Presenter,
		projectiles:  params.Projectiles,
		replicaSpeed: params.ReplicaSpeed,
		entries:      make(map[message.PeerId]*mirrorEntry),
		log: logger.With(
			zap.String("component", "Mirror"),
			zap.Uint64("localId", uint64(params.LocalId)),
		),
	}
}

func (m *Mirror) LocalId() message.PeerId {
	return m.localId
}

func (m *Mirror) Has(id message.PeerId) bool {
	_, has := m.entries[id]
	return has
}

func (m *Mirror) Len() int {
	return len(m.entries)
}

func (m *Mirror) Ids() []message.PeerId {
	ids := make([]message.PeerId, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Position is the last position applied for id.
func (m *Mirror) Position(id message.PeerId) (message.Vec3, bool) {
	entry, has := m.entries[id]
	if !has {
		return message.Vec3{}, false
	}
	return entry.position, true
}

func (m *Mirror) remove(id message.PeerId) {
	entry, has := m.entries[id]
	if !has {
		return
	}
	m.presenter.DespawnAvatar(entry.handle)
	delete(m.entries, id)
}

// ApplyServerMessage folds one message from the host into the mirror and
// returns whatever must be sent back to the host because of it.
func (m *Mirror) ApplyServerMessage(msg message.Message) []message.Message {
	switch msg := msg.(type) {
	case message.PlayerConnected:
		if msg.Id == m.localId {
			return nil
		}
		if m.Has(msg.Id) {
			return nil
		}
		handle := m.presenter.SpawnAvatar(msg.Id, msg.Position)
		m.entries[msg.Id] = &mirrorEntry{handle: handle, position: msg.Position}
		m.log.Info("Remote player appeared", zap.Uint64("peerId", uint64(msg.Id)))
		// The host ignores this echo; it only ever goes out on first sight.
		return []message.Message{msg}
	case message.PlayerDisconnected:
		if m.Has(msg.Id) {
			m.log.Info("Remote player left", zap.Uint64("peerId", uint64(msg.Id)))
		}
		m.remove(msg.Id)
		return nil
	case message.PlayerMoved:
		entry, has := m.entries[msg.Id]
		if !has {
			return nil
		}
		entry.position = msg.Position
		m.presenter.MoveAvatar(entry.handle, msg.Position)
		return nil
	case message.ProjectileSpawned:
		if msg.Id == m.localId {
			return nil
		}
		if m.projectiles != nil {
			m.projectiles.Spawn(msg.Id, msg.Position, msg.Direction, m.replicaSpeed)
		}
		return nil
	case message.PlayerDeath:
		if msg.Id == m.localId {
			return nil
		}
		if m.Has(msg.Id) {
			m.log.Info("Remote player died", zap.Uint64("peerId", uint64(msg.Id)))
		}
		m.remove(msg.Id)
		return nil
	case message.TestMessage:
		m.log.Info("Test message from host", zap.String("text", msg.Text))
		return nil
	}

	m.log.Warn("Unhandled message type", zap.Any("message", msg))
	return nil
}
