package lobby

import (
	"testing"

	"github.com/sessamekesh/peersync/pkg/message"
	"go.uber.org/zap/zaptest"
)

var spawn = message.Vec3{X: 0, Y: 1.3, Z: 0}

func newTestLobby(t *testing.T) *Lobby {
	return CreateLobby(LobbyParams{SpawnPoint: spawn, Logger: zaptest.NewLogger(t)})
}

// connectedTo collects the ids announced by PlayerConnected deliveries that
// reach peer.
func connectedTo(deliveries []message.Delivery, peer message.PeerId) []message.PeerId {
	var ids []message.PeerId
	for _, d := range deliveries {
		if pc, ok := d.Message.(message.PlayerConnected); ok && d.Target.Includes(peer) {
			ids = append(ids, pc.Id)
		}
	}
	return ids
}

func TestOnPeerConnectedCatchUpIsCompleteAndOrdered(t *testing.T) {
	l := newTestLobby(t)
	l.OnPeerConnected(300)
	l.OnPeerConnected(100)
	l.ApplyClientMessage(100, message.PlayerMoved{Id: 100, Position: message.Vec3{X: 5}})

	deliveries := l.OnPeerConnected(200)

	got := connectedTo(deliveries, 200)
	want := []message.PeerId{100, 200, 300}
	if len(got) != len(want) {
		t.Fatalf("newcomer saw %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("newcomer saw %v, want %v", got, want)
		}
	}

	for _, d := range deliveries {
		if pc, ok := d.Message.(message.PlayerConnected); ok && pc.Id == 100 && pc.Position.X != 5 {
			t.Fatalf("catch-up for 100 used stale position %v", pc.Position)
		}
	}

	for _, old := range []message.PeerId{100, 300} {
		seen := connectedTo(deliveries, old)
		if len(seen) != 1 || seen[0] != 200 {
			t.Fatalf("peer %d saw %v, want exactly [200]", old, seen)
		}
	}
}

func TestDuplicateConnectKeepsPosition(t *testing.T) {
	l := newTestLobby(t)
	l.OnPeerConnected(100)
	l.ApplyClientMessage(100, message.PlayerMoved{Id: 100, Position: message.Vec3{X: 1, Y: 2, Z: 3}})
	l.OnPeerConnected(100)

	record, ok := l.Get(100)
	if !ok || record.Position != (message.Vec3{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("record after duplicate connect = %+v, %v", record, ok)
	}
	if l.Len() != 1 {
		t.Fatalf("len = %d", l.Len())
	}
}

func TestPlayerMovedIsIdempotent(t *testing.T) {
	l := newTestLobby(t)
	l.OnPeerConnected(100)
	move := message.PlayerMoved{Id: 100, Position: message.Vec3{X: 3, Y: 1.3, Z: -2}}

	first := l.ApplyClientMessage(100, move)
	afterFirst := l.Snapshot()
	second := l.ApplyClientMessage(100, move)
	afterSecond := l.Snapshot()

	if len(afterFirst) != 1 || afterFirst[0] != afterSecond[0] {
		t.Fatalf("state changed on reapply: %v vs %v", afterFirst, afterSecond)
	}
	if len(first) != 1 || len(second) != 1 || first[0] != second[0] {
		t.Fatalf("reapply produced different deliveries: %v vs %v", first, second)
	}
	if first[0].Target != message.Broadcast() {
		t.Fatalf("move must be broadcast to everyone, got %+v", first[0].Target)
	}
}

func TestApplyClientMessage(t *testing.T) {
	tests := []struct {
		name       string
		msg        message.Message
		wantRelay  bool
		wantTarget message.Target
	}{
		{"move from unknown peer", message.PlayerMoved{Id: 999, Position: message.Vec3{X: 1}}, false, message.Target{}},
		{"projectile", message.ProjectileSpawned{Id: 100, Position: message.Vec3{X: 1}, Direction: message.Vec3{Z: 1}}, true, message.Broadcast()},
		{"death", message.PlayerDeath{Id: 100}, true, message.Broadcast()},
		{"test text", message.TestMessage{Text: "hi"}, false, message.Target{}},
		{"connected echo", message.PlayerConnected{Id: 100, Position: spawn}, false, message.Target{}},
		{"client disconnect", message.PlayerDisconnected{Id: 100}, false, message.Target{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := newTestLobby(t)
			l.OnPeerConnected(100)
			before := l.Snapshot()

			out := l.ApplyClientMessage(100, tc.msg)
			if !tc.wantRelay {
				if len(out) != 0 {
					t.Fatalf("expected nothing relayed, got %v", out)
				}
			} else {
				if len(out) != 1 || out[0].Message != tc.msg || out[0].Target != tc.wantTarget {
					t.Fatalf("unexpected relay %v", out)
				}
			}

			after := l.Snapshot()
			if len(before) != len(after) || before[0] != after[0] {
				t.Fatalf("lobby mutated: %v -> %v", before, after)
			}
		})
	}
}

func TestOnPeerDisconnected(t *testing.T) {
	l := newTestLobby(t)
	l.OnPeerConnected(100)
	l.OnPeerConnected(200)

	out := l.OnPeerDisconnected(100)
	if _, ok := l.Get(100); ok {
		t.Fatalf("record for 100 still present")
	}
	if len(out) != 1 || out[0].Message != (message.PlayerDisconnected{Id: 100}) || !out[0].Target.Includes(200) {
		t.Fatalf("unexpected disconnect deliveries %v", out)
	}

	again := l.OnPeerDisconnected(100)
	if len(again) != 1 || again[0].Message != (message.PlayerDisconnected{Id: 100}) {
		t.Fatalf("absent disconnect must still broadcast, got %v", again)
	}
	if l.Len() != 1 {
		t.Fatalf("len = %d, want 1", l.Len())
	}
}

func TestTwoPlayerScenario(t *testing.T) {
	l := newTestLobby(t)

	toA := connectedTo(l.OnPeerConnected(100), 100)
	if len(toA) != 1 || toA[0] != 100 {
		t.Fatalf("A catch-up = %v", toA)
	}

	joinB := l.OnPeerConnected(200)
	if got := connectedTo(joinB, 100); len(got) != 1 || got[0] != 200 {
		t.Fatalf("A should learn about B once, got %v", got)
	}
	if got := connectedTo(joinB, 200); len(got) != 2 || got[0] != 100 || got[1] != 200 {
		t.Fatalf("B catch-up = %v", got)
	}

	moveA := message.PlayerMoved{Id: 100, Position: message.Vec3{X: 3, Y: 1.3, Z: -2}}
	out := l.ApplyClientMessage(100, moveA)
	if len(out) != 1 || out[0].Message != moveA || !out[0].Target.Includes(100) || !out[0].Target.Includes(200) {
		t.Fatalf("move relay = %v", out)
	}
	if rec, _ := l.Get(100); rec.Position != moveA.Position {
		t.Fatalf("lobby position for A = %v", rec.Position)
	}

	out = l.OnPeerDisconnected(200)
	if len(out) != 1 || !out[0].Target.Includes(100) {
		t.Fatalf("A must be told B left, got %v", out)
	}
	if ids := l.Ids(); len(ids) != 1 || ids[0] != 100 {
		t.Fatalf("remaining ids = %v", ids)
	}
}
