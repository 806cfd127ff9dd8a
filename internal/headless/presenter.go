package headless

import (
	"github.com/sessamekesh/peersync/internal/observability"
	"github.com/sessamekesh/peersync/pkg/message"
	"github.com/sessamekesh/peersync/pkg/mirror"
	"go.uber.org/zap"
)

// LoggingPresenter records remote avatars and logs their lifecycle instead of
// drawing them.
type LoggingPresenter struct {
	next    mirror.AvatarHandle
	avatars map[mirror.AvatarHandle]message.PeerId

	log *zap.Logger
}

func CreateLoggingPresenter(logger *zap.Logger) *LoggingPresenter {
	logger = observability.OrDevelopment(logger)
	return &LoggingPresenter{
		avatars: make(map[mirror.AvatarHandle]message.PeerId),
		log:     logger.With(zap.String("component", "Presenter")),
	}
}

func (p *LoggingPresenter) SpawnAvatar(id message.PeerId, position message.Vec3) mirror.AvatarHandle {
	p.next++
	p.avatars[p.next] = id
	p.log.Info("Spawn avatar", zap.Uint64("peerId", uint64(id)), zap.Stringer("position", position))
	return p.next
}

func (p *LoggingPresenter) MoveAvatar(handle mirror.AvatarHandle, position message.Vec3) {
	p.log.Debug("Move avatar", zap.Uint64("peerId", uint64(p.avatars[handle])), zap.Stringer("position", position))
}

func (p *LoggingPresenter) DespawnAvatar(handle mirror.AvatarHandle) {
	p.log.Info("Despawn avatar", zap.Uint64("peerId", uint64(p.avatars[handle])))
	delete(p.avatars, handle)
}

func (p *LoggingPresenter) Count() int {
	return len(p.avatars)
}
