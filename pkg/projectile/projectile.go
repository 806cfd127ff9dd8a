package projectile

import (
	"math/rand"
	"time"

	"github.com/sessamekesh/peersync/internal/observability"
	"github.com/sessamekesh/peersync/pkg/message"
	"go.uber.org/zap"
)

const (
	DefaultLocalSpeed   float32 = 50
	DefaultReplicaSpeed float32 = 70
	DefaultLifetime             = 10 * time.Second

	aimLift   float32 = 0.03
	aimSpread float32 = 0.01
)

// Replica is a locally simulated projectile. Replicas of remote shots are never
// corrected or destroyed by the network; they only expire.
type Replica struct {
	Id        uint64
	Owner     message.PeerId
	Position  message.Vec3
	Direction message.Vec3
	Speed     float32
	Remaining time.Duration
}

// IdSource hands out projectile ids from the wall clock in milliseconds,
// bumping by one when two spawns land in the same millisecond.
type IdSource struct {
	now  func() time.Time
	last uint64
}

func CreateIdSource(now func() time.Time) *IdSource {
	if now == nil {
		now = time.Now
	}
	return &IdSource{now: now}
}

func (s *IdSource) Next() uint64 {
	id := uint64(s.now().UnixMilli())
	if id <= s.last {
		id = s.last + 1
	}
	s.last = id
	return id
}

type FieldParams struct {
	Lifetime time.Duration
	Ids      *IdSource

	// OnDespawn, if set, is called for every replica that expires.
	OnDespawn func(Replica)

	Logger *zap.Logger
}

// Field owns every live projectile replica. Not safe for concurrent use.
type Field struct {
	lifetime  time.Duration
	ids       *IdSource
	onDespawn func(Replica)

	replicas []*Replica

	log *zap.Logger
}

func CreateField(params FieldParams) *Field {
	logger := observability.OrDevelopment(params.Logger)
	lifetime := params.Lifetime
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	ids := params.Ids
	if ids == nil {
		ids = CreateIdSource(nil)
	}

	return &Field{
		lifetime:  lifetime,
		ids:       ids,
		onDespawn: params.OnDespawn,
		replicas:  make([]*Replica, 0, 16),
		log:       logger.With(zap.String("component", "ProjectileField")),
	}
}

func (f *Field) Spawn(owner message.PeerId, position message.Vec3, direction message.Vec3, speed float32) uint64 {
	r := &Replica{
		Id:        f.ids.Next(),
		Owner:     owner,
		Position:  position,
		Direction: direction,
		Speed:     speed,
		Remaining: f.lifetime,
	}
	f.replicas = append(f.replicas, r)
	f.log.Debug("Spawned projectile", zap.Uint64("id", r.Id), zap.Uint64("owner", uint64(owner)))
	return r.Id
}

// Tick advances every replica by elapsed and removes the ones whose lifetime
// ran out.
func (f *Field) Tick(elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}
	seconds := float32(elapsed.Seconds())

	live := f.replicas[:0]
	for _, r := range f.replicas {
		r.Position = r.Position.Add(r.Direction.Scale(r.Speed * seconds))
		r.Remaining -= elapsed
		if r.Remaining <= 0 {
			if f.onDespawn != nil {
				f.onDespawn(*r)
			}
			continue
		}
		live = append(live, r)
	}
	for i := len(live); i < len(f.replicas); i++ {
		f.replicas[i] = nil
	}
	f.replicas = live
}

func (f *Field) Len() int {
	return len(f.replicas)
}

// Replicas returns a copy of the live replicas in spawn order.
func (f *Field) Replicas() []Replica {
	out := make([]Replica, 0, len(f.replicas))
	for _, r := range f.replicas {
		out = append(out, *r)
	}
	return out
}

// AimWithSpread lifts aim slightly and jitters each axis by up to 0.01, the
// way local shots leave the muzzle.
func AimWithSpread(aim message.Vec3, rng *rand.Rand) message.Vec3 {
	jitter := func() float32 {
		return (rng.Float32()*2 - 1) * aimSpread
	}
	return message.Vec3{
		X: aim.X + jitter(),
		Y: aim.Y + aimLift + jitter(),
		Z: aim.Z + jitter(),
	}
}
