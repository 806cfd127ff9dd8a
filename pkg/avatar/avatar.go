package avatar

import (
	"github.com/sessamekesh/peersync/internal/observability"
	"go.uber.org/zap"
)

type LifeState uint8

const (
	LifeState_Alive LifeState = iota
	LifeState_Dead
)

func (s LifeState) String() string {
	switch s {
	case LifeState_Alive:
		return "Alive"
	case LifeState_Dead:
		return "Dead"
	}
	return "Unknown"
}

type ColliderKind uint8

const (
	ColliderKind_Other ColliderKind = iota
	ColliderKind_LocalPlayer
	ColliderKind_Projectile
	ColliderKind_Wall
)

// CollisionEvent is one contact reported by the physics layer. Order of A and
// B carries no meaning.
type CollisionEvent struct {
	A ColliderKind
	B ColliderKind
}

func (e CollisionEvent) involves(kind ColliderKind) bool {
	return e.A == kind || e.B == kind
}

// Avatar tracks whether the local player has been hit. Only local physics
// decides this; nothing is sent to other peers.
type Avatar struct {
	state LifeState
	log   *zap.Logger
}

func CreateAvatar(logger *zap.Logger) *Avatar {
	logger = observability.OrDevelopment(logger)
	return &Avatar{
		state: LifeState_Alive,
		log:   logger.With(zap.String("component", "Avatar")),
	}
}

func (a *Avatar) State() LifeState {
	return a.state
}

// OnCollision marks the avatar dead when a projectile hits the local player and
// reports whether this event killed it.
func (a *Avatar) OnCollision(ev CollisionEvent) bool {
	if !ev.involves(ColliderKind_LocalPlayer) || !ev.involves(ColliderKind_Projectile) {
		return false
	}
	if a.state == LifeState_Dead {
		return false
	}
	a.state = LifeState_Dead
	a.log.Info("Local player was hit")
	return true
}

// ConsumeDeath reports a pending death once and puts the avatar back to Alive.
func (a *Avatar) ConsumeDeath() bool {
	if a.state != LifeState_Dead {
		return false
	}
	a.log.Info("You are dead")
	a.state = LifeState_Alive
	return true
}
