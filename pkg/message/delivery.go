package message

type TargetKind uint8

const (
	TargetKind_Peer TargetKind = iota
	TargetKind_Broadcast
	TargetKind_BroadcastExcept
)

// Target says which connected peers a Delivery goes to. Peer is only
// meaningful for TargetKind_Peer and TargetKind_BroadcastExcept.
type Target struct {
	Kind TargetKind
	Peer PeerId
}

func ToPeer(id PeerId) Target {
	return Target{Kind: TargetKind_Peer, Peer: id}
}

func Broadcast() Target {
	return Target{Kind: TargetKind_Broadcast}
}

func BroadcastExcept(id PeerId) Target {
	return Target{Kind: TargetKind_BroadcastExcept, Peer: id}
}

// Includes reports whether a peer is addressed by this target.
func (t Target) Includes(id PeerId) bool {
	switch t.Kind {
	case TargetKind_Peer:
		return t.Peer == id
	case TargetKind_Broadcast:
		return true
	case TargetKind_BroadcastExcept:
		return t.Peer != id
	}
	return false
}

type Delivery struct {
	Target  Target
	Message Message
}
