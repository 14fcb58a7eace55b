// Package protocol implements the server list ping wire format: varint framed
// packets for the modern handshake/status/ping exchange, the legacy 0xFE
// probe, and interpretation of the JSON status payload.
// Multi-byte integers are big-endian.
package protocol

// Packet ids for the status exchange.
const (
	PktHandshake      int32 = 0x00 // Client -> server, next state follows
	PktStatusRequest  int32 = 0x00 // Client -> server, empty payload
	PktStatusResponse int32 = 0x00 // Server -> client, JSON string payload
	PktPing           int32 = 0x01 // Client -> server, 8-byte nonce
	PktPong           int32 = 0x01 // Server -> client, nonce echoed

	// NoPacketID frames a payload that already carries its id.
	NoPacketID int32 = -1
)

// Handshake constants.
const (
	// DefaultProtocolVersion is advertised in the handshake.
	DefaultProtocolVersion int32 = 753

	// NextStateStatus requests the status phase.
	NextStateStatus int32 = 1
)

// Legacy probe bytes.
const (
	LegacyProbeByte   byte = 0xFE
	LegacyPayloadByte byte = 0x01
	LegacyKickByte    byte = 0xFF
)

// MaxPacketSize is the largest frame accepted from a server (2^21 - 1, the
// largest length a 3-byte varint can announce).
const MaxPacketSize = 2097151

// Packet is a decoded frame.
type Packet struct {
	ID      int32
	Payload []byte
}
