package message

import "fmt"

// PeerId identifies a connected participant. Clients pick their own id at
// connection time (wall clock, milliseconds) and never reuse it.
type PeerId uint64

type Vec3 struct {
	X float32
	Y float32
	Z float32
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vec3) Scale(s float32) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
}

type MessageKind uint8

const (
	MessageKind_PlayerConnected MessageKind = iota
	MessageKind_PlayerDisconnected
	MessageKind_PlayerMoved
	MessageKind_ProjectileSpawned
	MessageKind_TestMessage
	MessageKind_PlayerDeath

	MessageKind_NONE
)

func (k MessageKind) String() string {
	switch k {
	case MessageKind_PlayerConnected:
		return "PlayerConnected"
	case MessageKind_PlayerDisconnected:
		return "PlayerDisconnected"
	case MessageKind_PlayerMoved:
		return "PlayerMoved"
	case MessageKind_ProjectileSpawned:
		return "ProjectileSpawned"
	case MessageKind_TestMessage:
		return "TestMessage"
	case MessageKind_PlayerDeath:
		return "PlayerDeath"
	}
	return "NONE"
}

// Message is the closed set of events peers exchange. Only the types in this
// file implement it; switch on the concrete type to handle one.
type Message interface {
	Kind() MessageKind
	isMessage()
}

type PlayerConnected struct {
	Id       PeerId
	Position Vec3
}

type PlayerDisconnected struct {
	Id PeerId
}

// PlayerMoved carries an absolute position snapshot, never a delta.
type PlayerMoved struct {
	Id       PeerId
	Position Vec3
}

type ProjectileSpawned struct {
	Id        PeerId
	Position  Vec3
	Direction Vec3
}

type TestMessage struct {
	Text string
}

type PlayerDeath struct {
	Id PeerId
}

func (PlayerConnected) Kind() MessageKind    { return MessageKind_PlayerConnected }
func (PlayerDisconnected) Kind() MessageKind { return MessageKind_PlayerDisconnected }
func (PlayerMoved) Kind() MessageKind        { return MessageKind_PlayerMoved }
func (ProjectileSpawned) Kind() MessageKind  { return MessageKind_ProjectileSpawned }
func (TestMessage) Kind() MessageKind        { return MessageKind_TestMessage }
func (PlayerDeath) Kind() MessageKind        { return MessageKind_PlayerDeath }

func (PlayerConnected) isMessage()    {}
func (PlayerDisconnected) isMessage() {}
func (PlayerMoved) isMessage()        {}
func (ProjectileSpawned) isMessage()  {}
func (TestMessage) isMessage()        {}
func (PlayerDeath) isMessage()        {}
