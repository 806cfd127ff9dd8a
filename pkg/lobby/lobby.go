package lobby

import (
	"sort"

	"github.com/sessamekesh/peersync/internal/observability"
	"github.com/sessamekesh/peersync/pkg/message"
	"go.uber.org/zap"
)

type PlayerRecord struct {
	Id       message.PeerId
	Position message.Vec3
}

type LobbyParams struct {
	SpawnPoint message.Vec3
	Logger     *zap.Logger
}

// Lobby is the host's authoritative view of who is connected and where they
// stand. It is not safe for concurrent use; the host tick owns it.
type Lobby struct {
	spawnPoint message.Vec3
	players    map[message.PeerId]*PlayerRecord

	log *zap.Logger
}

func CreateLobby(params LobbyParams) *Lobby {
	logger := observability.OrDevelopment(params.Logger)

	return &Lobby{
		spawnPoint: params.SpawnPoint,
		players:    make(map[message.PeerId]*PlayerRecord),
		log:        logger.With(zap.String("component", "Lobby")),
	}
}

func (l *Lobby) Get(id message.PeerId) (PlayerRecord, bool) {
	record, has := l.players[id]
	if !has {
		return PlayerRecord{}, false
	}
	return *record, true
}

func (l *Lobby) Len() int {
	return len(l.players)
}

// Ids returns every registered peer in ascending order.
func (l *Lobby) Ids() []message.PeerId {
	ids := make([]message.PeerId, 0, len(l.players))
	for id := range l.players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (l *Lobby) Snapshot() []PlayerRecord {
	ids := l.Ids()
	out := make([]PlayerRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, *l.players[id])
	}
	return out
}

// OnPeerConnected registers id at the spawn point (an existing record keeps its
// position), sends the newcomer every current record, and announces the
// newcomer to everyone else.
func (l *Lobby) OnPeerConnected(id message.PeerId) []message.Delivery {
	record, has := l.players[id]
	if has {
		l.log.Debug("Peer connected again, keeping existing record", zap.Uint64("peerId", uint64(id)))
	} else {
		record = &PlayerRecord{Id: id, Position: l.spawnPoint}
		l.players[id] = record
		l.log.Info("Player joined lobby", zap.Uint64("peerId", uint64(id)), zap.Int("players", len(l.players)))
	}

	deliveries := make([]message.Delivery, 0, len(l.players)+1)
	for _, other := range l.Snapshot() {
		deliveries = append(deliveries, message.Delivery{
			Target:  message.ToPeer(id),
			Message: message.PlayerConnected{Id: other.Id, Position: other.Position},
		})
	}

	deliveries = append(deliveries, message.Delivery{
		Target:  message.BroadcastExcept(id),
		Message: message.PlayerConnected{Id: id, Position: record.Position},
	})

	return deliveries
}

// OnPeerDisconnected drops id and tells the remaining peers. The broadcast goes
// out even when id was never registered.
func (l *Lobby) OnPeerDisconnected(id message.PeerId) []message.Delivery {
	if _, has := l.players[id]; has {
		delete(l.players, id)
		l.log.Info("Player left lobby", zap.Uint64("peerId", uint64(id)), zap.Int("players", len(l.players)))
	} else {
		l.log.Debug("Disconnect for unknown peer", zap.Uint64("peerId", uint64(id)))
	}

	return []message.Delivery{{
		Target:  message.BroadcastExcept(id),
		Message: message.PlayerDisconnected{Id: id},
	}}
}

// ApplyClientMessage folds one message from sender into the lobby and returns
// what the host should relay because of it.
func (l *Lobby) ApplyClientMessage(sender message.PeerId, msg message.Message) []message.Delivery {
	log := l.log.With(zap.Uint64("sender", uint64(sender)))

	switch m := msg.(type) {
	case message.PlayerMoved:
		record, has := l.players[m.Id]
		if !has {
			log.Debug("Ignoring move for unknown peer", zap.Uint64("peerId", uint64(m.Id)))
			return nil
		}
		record.Position = m.Position
		return []message.Delivery{{Target: message.Broadcast(), Message: m}}
	case message.ProjectileSpawned:
		return []message.Delivery{{Target: message.Broadcast(), Message: m}}
	case message.PlayerDeath:
		return []message.Delivery{{Target: message.Broadcast(), Message: m}}
	case message.TestMessage:
		log.Info("Test message from client", zap.String("text", m.Text))
		return nil
	case message.PlayerConnected, message.PlayerDisconnected:
		// Presence is decided by the transport, never by clients.
		log.Debug("Ignoring client presence message", zap.Stringer("kind", m.Kind()))
		return nil
	}

	log.Warn("Unhandled message type", zap.Any("message", msg))
	return nil
}
