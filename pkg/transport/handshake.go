package transport

import (
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/sessamekesh/peersync/pkg/transport/PeerSyncMessage"
)

// ConnectionRefusedError is what a client sees when the host answered its
// handshake with a negative verdict.
type ConnectionRefusedError struct {
	Reason string
}

func (e *ConnectionRefusedError) Error() string {
	return fmt.Sprintf("Connection refused by host: %s", e.Reason)
}

type DeformedHandshakeError struct {
	MessageName string
	Cause       any
}

func (e *DeformedHandshakeError) Error() string {
	return fmt.Sprintf("Deformed %s: %v", e.MessageName, e.Cause)
}

type NonBinaryMessage struct{}

func (m *NonBinaryMessage) Error() string {
	return "Non binary message received"
}

func createConnectClientMsg(clientId uint64, protocolId uint64) []byte {
	b := flatbuffers.NewBuilder(32)
	PeerSyncMessage.ConnectClientMessageStart(b)
	PeerSyncMessage.ConnectClientMessageAddClientId(b, clientId)
	PeerSyncMessage.ConnectClientMessageAddProtocolId(b, protocolId)
	b.Finish(PeerSyncMessage.ConnectClientMessageEnd(b))
	return b.FinishedBytes()
}

// Flatbuffers accessors panic on truncated input instead of returning errors.
func safeParseConnectClientMsg(payload []byte) (clientId uint64, protocolId uint64, err error) {
	defer func() {
		if r := recover(); r != nil {
			clientId, protocolId = 0, 0
			err = &DeformedHandshakeError{MessageName: "ConnectClientMessage", Cause: r}
		}
	}()

	msg := PeerSyncMessage.GetRootAsConnectClientMessage(payload, 0)
	return msg.ClientId(), msg.ProtocolId(), nil
}

func createVerdictMsg(accepted bool, reason string) []byte {
	b := flatbuffers.NewBuilder(64)
	var pReasonString flatbuffers.UOffsetT
	if reason != "" {
		pReasonString = b.CreateString(reason)
	}

	PeerSyncMessage.ConnectClientVerdictStart(b)
	PeerSyncMessage.ConnectClientVerdictAddAccepted(b, accepted)
	if reason != "" {
		PeerSyncMessage.ConnectClientVerdictAddErrorReason(b, pReasonString)
	}
	b.Finish(PeerSyncMessage.ConnectClientVerdictEnd(b))
	return b.FinishedBytes()
}

func safeParseVerdictMsg(payload []byte) (accepted bool, reason string, err error) {
	defer func() {
		if r := recover(); r != nil {
			accepted, reason = false, ""
			err = &DeformedHandshakeError{MessageName: "ConnectClientVerdict", Cause: r}
		}
	}()

	msg := PeerSyncMessage.GetRootAsConnectClientVerdict(payload, 0)
	return msg.Accepted(), string(msg.ErrorReason()), nil
}

// verdictFromAdmit turns the hub's decision into the reason string sent back
// to the client.
func verdictFromAdmit(err error) []byte {
	if err == nil {
		return createVerdictMsg(true, "")
	}
	return createVerdictMsg(false, err.Error())
}
