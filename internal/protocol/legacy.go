package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"github.com/energizer-project/mcwatch/internal/status"
)

// LegacyMarker prefixes the field list of a legacy status reply.
const LegacyMarker = "§"

// legacyFieldCount is [prefix, protocol, version, motd, online, max].
const legacyFieldCount = 6

var utf16BE = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// ReadLegacyResponse reads a legacy kick packet: the 0xFF marker byte, a
// big-endian character count, then that many UTF-16BE code units.
func ReadLegacyResponse(r io.Reader) ([]byte, error) {
	var header [3]byte
	if _, err := io.ReadFull(r, header[:1]); err != nil {
		return nil, truncated("read legacy marker", err)
	}
	if header[0] != LegacyKickByte {
		return nil, status.Errorf(status.KindInvalidData, "read legacy marker", "unexpected leading byte 0x%02x", header[0])
	}

	if _, err := io.ReadFull(r, header[1:]); err != nil {
		return nil, truncated("read legacy length", err)
	}
	chars := int(binary.BigEndian.Uint16(header[1:]))

	data := make([]byte, 3+chars*2)
	copy(data, header[:])
	if _, err := io.ReadFull(r, data[3:]); err != nil {
		return nil, truncated("read legacy payload", err)
	}
	return data, nil
}

// ParseLegacy decodes a full legacy reply, including its 3-byte header.
func ParseLegacy(data []byte) (status.Result, error) {
	if len(data) == 0 || data[0] != LegacyKickByte {
		return status.Result{}, status.Errorf(status.KindInvalidData, "parse legacy", "missing 0x%02x marker", LegacyKickByte)
	}
	if len(data) < 3 {
		return status.Result{}, status.NewError(status.KindTruncated, "parse legacy", io.ErrUnexpectedEOF)
	}

	text, err := utf16BE.NewDecoder().Bytes(data[3:])
	if err != nil {
		return status.Result{}, status.NewError(status.KindInvalidData, "parse legacy", fmt.Errorf("failed to decode UTF-16BE: %w", err))
	}

	s := string(text)
	if !strings.HasPrefix(s, LegacyMarker) {
		return status.Result{}, status.Errorf(status.KindInvalidData, "parse legacy", "reply does not start with %q", LegacyMarker)
	}

	fields := strings.Split(s, "\x00")
	if len(fields) < legacyFieldCount {
		return status.Result{}, status.Errorf(status.KindInvalidData, "parse legacy", "expected %d fields, got %d", legacyFieldCount, len(fields))
	}

	proto, err := strconv.Atoi(fields[1])
	if err != nil {
		return status.Result{}, status.Errorf(status.KindInvalidData, "parse legacy", "invalid protocol %q", fields[1])
	}
	online, err := strconv.Atoi(fields[4])
	if err != nil {
		return status.Result{}, status.Errorf(status.KindInvalidData, "parse legacy", "invalid online count %q", fields[4])
	}
	maxPlayers, err := strconv.Atoi(fields[5])
	if err != nil {
		return status.Result{}, status.Errorf(status.KindInvalidData, "parse legacy", "invalid max players %q", fields[5])
	}

	return status.Result{
		Motd:           fields[3],
		MaxPlayers:     maxPlayers,
		CurrentPlayers: online,
		Version:        fields[2],
		Protocol:       proto,
		Sample:         []status.PlayerRef{},
	}, nil
}

// EncodeLegacy builds the legacy reply a server would send for r.
func EncodeLegacy(r status.Result) ([]byte, error) {
	text := strings.Join([]string{
		LegacyMarker + "1",
		strconv.Itoa(r.Protocol),
		r.Version,
		r.Motd,
		strconv.Itoa(r.CurrentPlayers),
		strconv.Itoa(r.MaxPlayers),
	}, "\x00")

	encoded, err := utf16BE.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("failed to encode UTF-16BE: %w", err)
	}

	out := make([]byte, 3, 3+len(encoded))
	out[0] = LegacyKickByte
	binary.BigEndian.PutUint16(out[1:], uint16(len(encoded)/2))
	return append(out, encoded...), nil
}
