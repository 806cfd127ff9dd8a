package headless

import (
	"math"
	"time"

	"github.com/sessamekesh/peersync/internal/observability"
	"github.com/sessamekesh/peersync/pkg/avatar"
	"github.com/sessamekesh/peersync/pkg/engine"
	"github.com/sessamekesh/peersync/pkg/message"
	"github.com/sessamekesh/peersync/pkg/projectile"
	"go.uber.org/zap"
)

const defaultHitRadius float32 = 0.5

type BotParams struct {
	LocalId message.PeerId
	Center  message.Vec3
	Radius  float32

	// AngularSpeed is in radians per second.
	AngularSpeed float64
	FireInterval time.Duration
	HitRadius    float32

	Now    func() time.Time
	Logger *zap.Logger
}

// Bot stands in for a player when no renderer or input is attached: it walks
// in a circle, shoots at the center now and then and notices when a remote
// projectile passes through it.
type Bot struct {
	params BotParams
	start  time.Time

	lastFire time.Time
	position message.Vec3
	hazards  *projectile.Field

	log *zap.Logger
}

func CreateBot(params BotParams) *Bot {
	logger := observability.OrDevelopment(params.Logger)
	if params.Now == nil {
		params.Now = time.Now
	}
	if params.HitRadius <= 0 {
		params.HitRadius = defaultHitRadius
	}
	start := params.Now()

	return &Bot{
		params:   params,
		start:    start,
		lastFire: start,
		position: params.Center,
		log:      logger.With(zap.String("component", "HeadlessBot")),
	}
}

// Watch makes projectiles in field count as hazards for collision checks.
func (b *Bot) Watch(field *projectile.Field) {
	b.hazards = field
}

func (b *Bot) Position() message.Vec3 {
	angle := b.params.Now().Sub(b.start).Seconds() * b.params.AngularSpeed
	b.position = message.Vec3{
		X: b.params.Center.X + b.params.Radius*float32(math.Cos(angle)),
		Y: b.params.Center.Y,
		Z: b.params.Center.Z + b.params.Radius*float32(math.Sin(angle)),
	}
	return b.position
}

func (b *Bot) DrainFireEvents() []engine.FireEvent {
	if b.params.FireInterval <= 0 {
		return nil
	}
	now := b.params.Now()
	if now.Sub(b.lastFire) < b.params.FireInterval {
		return nil
	}
	b.lastFire = now

	aim := b.params.Center.Add(b.position.Scale(-1))
	length := float32(math.Sqrt(float64(aim.X*aim.X + aim.Y*aim.Y + aim.Z*aim.Z)))
	if length == 0 {
		aim = message.Vec3{Z: -1}
	} else {
		aim = aim.Scale(1 / length)
	}

	return []engine.FireEvent{{Origin: b.position, Aim: aim}}
}

func (b *Bot) DrainCollisions() []avatar.CollisionEvent {
	if b.hazards == nil {
		return nil
	}

	var out []avatar.CollisionEvent
	for _, r := range b.hazards.Replicas() {
		if r.Owner == b.params.LocalId {
			continue
		}
		d := r.Position.Add(b.position.Scale(-1))
		if d.X*d.X+d.Y*d.Y+d.Z*d.Z <= b.params.HitRadius*b.params.HitRadius {
			b.log.Debug("Projectile hit bot", zap.Uint64("projectileId", r.Id), zap.Uint64("owner", uint64(r.Owner)))
			out = append(out, avatar.CollisionEvent{A: avatar.ColliderKind_Projectile, B: avatar.ColliderKind_LocalPlayer})
		}
	}
	return out
}
