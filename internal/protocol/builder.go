package protocol

import (
	"bytes"
	"encoding/binary"
)

// PacketBuilder constructs packet payloads for the status exchange.
type PacketBuilder struct {
	buf bytes.Buffer
}

// NewPacketBuilder creates a new PacketBuilder.
func NewPacketBuilder() *PacketBuilder {
	return &PacketBuilder{}
}

// WriteVarInt writes a varint.
func (b *PacketBuilder) WriteVarInt(v int32) *PacketBuilder {
	var tmp [MaxVarIntLen]byte
	b.buf.Write(AppendVarInt(tmp[:0], v))
	return b
}

// WriteUint16 writes a uint16 in big-endian order.
func (b *PacketBuilder) WriteUint16(v uint16) *PacketBuilder {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	b.buf.Write(tmp[:])
	return b
}

// WriteInt64 writes an int64 in big-endian order.
func (b *PacketBuilder) WriteInt64(v int64) *PacketBuilder {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	b.buf.Write(tmp[:])
	return b
}

// WriteString writes a varint length-prefixed UTF-8 string.
func (b *PacketBuilder) WriteString(s string) *PacketBuilder {
	b.WriteVarInt(int32(len(s)))
	b.buf.WriteString(s)
	return b
}

// Build returns the payload built so far.
func (b *PacketBuilder) Build() []byte {
	return b.buf.Bytes()
}

// BuildFrame returns the payload framed as varint(length) [varint(id)] payload.
// An id of NoPacketID writes no id.
func (b *PacketBuilder) BuildFrame(id int32) []byte {
	return AppendFrame(nil, id, b.buf.Bytes())
}

// ---- Pre-built packet constructors ----

// BuildHandshake creates the framed handshake packet.
// Format: [protocol:varint][address:string][port:u16][next_state:varint]
func BuildHandshake(protocolVersion int32, host string, port uint16) []byte {
	b := NewPacketBuilder()
	b.WriteVarInt(protocolVersion)
	b.WriteString(host)
	b.WriteUint16(port)
	b.WriteVarInt(NextStateStatus)
	return b.BuildFrame(PktHandshake)
}

// BuildStatusRequest creates the framed, empty status request.
func BuildStatusRequest() []byte {
	return NewPacketBuilder().BuildFrame(PktStatusRequest)
}

// BuildPing creates the framed timed-ping packet carrying nonce.
func BuildPing(nonce int64) []byte {
	return NewPacketBuilder().WriteInt64(nonce).BuildFrame(PktPing)
}

// BuildLegacyProbe returns the two-byte legacy status probe.
func BuildLegacyProbe() []byte {
	return []byte{LegacyProbeByte, LegacyPayloadByte}
}
