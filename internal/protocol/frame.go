package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/energizer-project/mcwatch/internal/status"
)

// AppendFrame appends varint(length) [varint(id)] payload to buf.
func AppendFrame(buf []byte, id int32, payload []byte) []byte {
	length := len(payload)
	if id >= 0 {
		length += VarIntSize(id)
	}

	buf = AppendVarInt(buf, int32(length))
	if id >= 0 {
		buf = AppendVarInt(buf, id)
	}
	return append(buf, payload...)
}

// WriteFrame writes one framed packet.
func WriteFrame(w io.Writer, id int32, payload []byte) error {
	if _, err := w.Write(AppendFrame(nil, id, payload)); err != nil {
		return fmt.Errorf("failed to write packet 0x%02x: %w", id, err)
	}
	return nil
}

// ReadFrame reads one framed packet: varint length, varint id, then the
// remaining length - sizeof(id) bytes of payload.
func ReadFrame(r *bufio.Reader) (*Packet, error) {
	length, _, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}

	if length < 1 || length > MaxPacketSize {
		return nil, status.Errorf(status.KindInvalidData, "read frame", "packet length %d out of range (max %d)", length, MaxPacketSize)
	}

	id, idSize, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}

	remaining := int(length) - idSize
	if remaining < 0 {
		return nil, status.Errorf(status.KindInvalidData, "read frame", "packet length %d shorter than its id", length)
	}

	payload := make([]byte, remaining)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, truncated("read frame payload", err)
	}

	return &Packet{ID: id, Payload: payload}, nil
}

// StatusJSON extracts the JSON string carried by a status response payload.
func StatusJSON(pkt *Packet) (string, error) {
	if pkt.ID != PktStatusResponse {
		return "", status.Errorf(status.KindInvalidData, "status response", "unexpected packet id 0x%02x", pkt.ID)
	}
	return ReadString(bytes.NewReader(pkt.Payload), MaxPacketSize)
}

// PongNonce extracts the echoed nonce of a pong payload.
func PongNonce(pkt *Packet) (int64, error) {
	if pkt.ID != PktPong {
		return 0, status.Errorf(status.KindInvalidData, "pong", "unexpected packet id 0x%02x", pkt.ID)
	}
	if len(pkt.Payload) < 8 {
		return 0, status.Errorf(status.KindTruncated, "pong", "payload has %d bytes, want 8", len(pkt.Payload))
	}
	return int64(binary.BigEndian.Uint64(pkt.Payload[:8])), nil
}
