package message

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/sessamekesh/peersync/pkg/errors"
)

const (
	DefaultMagicNumber uint32 = 0x4e595350
	DefaultVersion     uint8  = 1

	headerSize    = 5
	peerIdSize    = 8
	vec3Size      = 12
	maxTextLength = math.MaxUint16

	// MaxPayloadSize is the largest payload the serializer can produce: a
	// TestMessage carrying the longest allowed text.
	MaxPayloadSize = headerSize + 2 + maxTextLength
)

func messageKindToHeaderId(kind MessageKind) uint8 {
	switch kind {
	case MessageKind_PlayerConnected:
		return 0x0
	case MessageKind_PlayerDisconnected:
		return 0x1
	case MessageKind_PlayerMoved:
		return 0x2
	case MessageKind_ProjectileSpawned:
		return 0x3
	case MessageKind_TestMessage:
		return 0x4
	case MessageKind_PlayerDeath:
		return 0x5
	}

	return 0xFF
}

func headerIdToMessageKind(headerId uint8) MessageKind {
	switch headerId {
	case 0x0:
		return MessageKind_PlayerConnected
	case 0x1:
		return MessageKind_PlayerDisconnected
	case 0x2:
		return MessageKind_PlayerMoved
	case 0x3:
		return MessageKind_ProjectileSpawned
	case 0x4:
		return MessageKind_TestMessage
	case 0x5:
		return MessageKind_PlayerDeath
	}

	return MessageKind_NONE
}

// MessageSerializer converts messages to and from the flat little-endian wire
// format: magic number, one version/type byte, then the variant's fields.
type MessageSerializer struct {
	MagicNumber uint32
	Version     uint8
}

func CreateMessageSerializer() MessageSerializer {
	return MessageSerializer{
		MagicNumber: DefaultMagicNumber,
		Version:     DefaultVersion,
	}
}

//
// Parsing

func readPeerId(msg []byte, readPtr int, messageName string) (int, PeerId, error) {
	if len(msg) < readPtr+peerIdSize {
		return readPtr, 0, &errors.Underflow{
			MessageName: messageName,
			MsgSize:     len(msg),
			MinimumSize: readPtr + peerIdSize,
		}
	}

	return readPtr + peerIdSize, PeerId(binary.LittleEndian.Uint64(msg[readPtr : readPtr+peerIdSize])), nil
}

func readVec3(msg []byte, readPtr int, messageName string) (int, Vec3, error) {
	if len(msg) < readPtr+vec3Size {
		return readPtr, Vec3{}, &errors.Underflow{
			MessageName: messageName,
			MsgSize:     len(msg),
			MinimumSize: readPtr + vec3Size,
		}
	}

	return readPtr + vec3Size, Vec3{
		X: math.Float32frombits(binary.LittleEndian.Uint32(msg[readPtr : readPtr+4])),
		Y: math.Float32frombits(binary.LittleEndian.Uint32(msg[readPtr+4 : readPtr+8])),
		Z: math.Float32frombits(binary.LittleEndian.Uint32(msg[readPtr+8 : readPtr+12])),
	}, nil
}

func readString(msg []byte, readPtr int, messageName string, fieldName string) (int, string, error) {
	if len(msg) < readPtr+2 {
		return readPtr, "", &errors.Underflow{
			MessageName: messageName + "::" + fieldName + "Length",
			MsgSize:     len(msg),
			MinimumSize: readPtr + 2,
		}
	}

	strLen := int(binary.LittleEndian.Uint16(msg[readPtr : readPtr+2]))
	ptr := readPtr + 2

	if len(msg) < ptr+strLen {
		return readPtr, "", &errors.Underflow{
			MessageName: messageName + "::" + fieldName,
			MsgSize:     len(msg) - ptr,
			MinimumSize: strLen,
		}
	}

	raw := msg[ptr : ptr+strLen]
	if !utf8.Valid(raw) {
		return readPtr, "", &errors.InvalidString{
			MessageName: messageName,
			FieldName:   fieldName,
		}
	}

	return ptr + strLen, string(raw), nil
}

func (s MessageSerializer) parseIdAndPosition(msg []byte, readPtr int, messageName string) (int, PeerId, Vec3, error) {
	ptr, id, err := readPeerId(msg, readPtr, messageName)
	if err != nil {
		return readPtr, 0, Vec3{}, err
	}
	ptr, position, err := readVec3(msg, ptr, messageName)
	if err != nil {
		return readPtr, 0, Vec3{}, err
	}
	return ptr, id, position, nil
}

func (s MessageSerializer) Parse(msg []byte) (Message, error) {
	if len(msg) < headerSize {
		return nil, &errors.Underflow{
			MessageName: "Message",
			MsgSize:     len(msg),
			MinimumSize: headerSize,
		}
	}

	magicNumber := binary.LittleEndian.Uint32(msg[0:4])
	versionTypeByte := msg[4]
	version := versionTypeByte & 0xF0 >> 4
	msgTypeNum := versionTypeByte & 0xF
	kind := headerIdToMessageKind(msgTypeNum)

	if magicNumber != s.MagicNumber || version != s.Version {
		return nil, &errors.InvalidHeaderVersion{
			ExpectedMagicNumber: s.MagicNumber,
			ExpectedVersion:     s.Version,
			ActualMagicNumber:   magicNumber,
			ActualVersion:       version,
		}
	}

	readPtr := headerSize
	var parsed Message
	var pErr error

	switch kind {
	case MessageKind_PlayerConnected:
		var id PeerId
		var position Vec3
		readPtr, id, position, pErr = s.parseIdAndPosition(msg, readPtr, "PlayerConnected")
		parsed = PlayerConnected{Id: id, Position: position}
	case MessageKind_PlayerDisconnected:
		var id PeerId
		readPtr, id, pErr = readPeerId(msg, readPtr, "PlayerDisconnected")
		parsed = PlayerDisconnected{Id: id}
	case MessageKind_PlayerMoved:
		var id PeerId
		var position Vec3
		readPtr, id, position, pErr = s.parseIdAndPosition(msg, readPtr, "PlayerMoved")
		parsed = PlayerMoved{Id: id, Position: position}
	case MessageKind_ProjectileSpawned:
		var id PeerId
		var position, direction Vec3
		readPtr, id, position, pErr = s.parseIdAndPosition(msg, readPtr, "ProjectileSpawned")
		if pErr == nil {
			readPtr, direction, pErr = readVec3(msg, readPtr, "ProjectileSpawned::Direction")
		}
		parsed = ProjectileSpawned{Id: id, Position: position, Direction: direction}
	case MessageKind_TestMessage:
		var text string
		readPtr, text, pErr = readString(msg, readPtr, "TestMessage", "Text")
		parsed = TestMessage{Text: text}
	case MessageKind_PlayerDeath:
		var id PeerId
		readPtr, id, pErr = readPeerId(msg, readPtr, "PlayerDeath")
		parsed = PlayerDeath{Id: id}
	default:
		return nil, &errors.InvalidEnumValue{
			EnumName: "MessageKind",
			IntValue: msgTypeNum,
		}
	}

	if pErr != nil {
		return nil, pErr
	}

	if readPtr != len(msg) {
		return nil, &errors.TrailingBytes{
			MessageName: kind.String(),
			Extra:       len(msg) - readPtr,
		}
	}

	return parsed, nil
}

//
// Serialization

func appendVec3(out []byte, v Vec3) []byte {
	out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v.X))
	out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v.Y))
	return binary.LittleEndian.AppendUint32(out, math.Float32bits(v.Z))
}

func appendPeerId(out []byte, id PeerId) []byte {
	return binary.LittleEndian.AppendUint64(out, uint64(id))
}

func (s MessageSerializer) Serialize(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, &errors.MissingFieldError{
			MessageName: "Message",
			FieldName:   "Body",
		}
	}

	headerId := messageKindToHeaderId(msg.Kind())
	if headerId == 0xFF {
		return nil, &errors.InvalidEnumValue{
			EnumName: "MessageKind",
			IntValue: uint8(msg.Kind()),
		}
	}

	out := make([]byte, 0, headerSize+peerIdSize+2*vec3Size)
	out = binary.LittleEndian.AppendUint32(out, s.MagicNumber)
	out = append(out, s.Version<<4|(headerId&0xF))

	switch m := msg.(type) {
	case PlayerConnected:
		out = appendPeerId(out, m.Id)
		out = appendVec3(out, m.Position)
	case PlayerDisconnected:
		out = appendPeerId(out, m.Id)
	case PlayerMoved:
		out = appendPeerId(out, m.Id)
		out = appendVec3(out, m.Position)
	case ProjectileSpawned:
		out = appendPeerId(out, m.Id)
		out = appendVec3(out, m.Position)
		out = appendVec3(out, m.Direction)
	case TestMessage:
		if len(m.Text) > maxTextLength {
			return nil, &errors.StringTooLong{
				MessageName: "TestMessage",
				Length:      len(m.Text),
				MaxLength:   maxTextLength,
			}
		}
		out = binary.LittleEndian.AppendUint16(out, uint16(len(m.Text)))
		out = append(out, m.Text...)
	case PlayerDeath:
		out = appendPeerId(out, m.Id)
	default:
		// Pointer variants satisfy Message through their value methods but are
		// not part of the protocol.
		return nil, &errors.InvalidEnumValue{
			EnumName: "Message",
			IntValue: headerId,
		}
	}

	return out, nil
}
