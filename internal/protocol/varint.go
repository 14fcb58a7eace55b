package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/energizer-project/mcwatch/internal/status"
)

// MaxVarIntLen is the longest encoding of a 32-bit varint.
const MaxVarIntLen = 5

// AppendVarInt appends the varint encoding of v to buf. Negative values use
// their two's complement and always take five bytes.
func AppendVarInt(buf []byte, v int32) []byte {
	u := uint32(v)
	for u >= 0x80 {
		buf = append(buf, byte(u)|0x80)
		u >>= 7
	}
	return append(buf, byte(u))
}

// VarIntSize returns the encoded length of v.
func VarIntSize(v int32) int {
	u := uint32(v)
	n := 1
	for u >= 0x80 {
		u >>= 7
		n++
	}
	return n
}

// ReadVarInt decodes a varint and returns its value and encoded length.
func ReadVarInt(r io.ByteReader) (int32, int, error) {
	var value uint32
	for i := 0; i < MaxVarIntLen; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, i, truncated("read varint", err)
		}

		if i == MaxVarIntLen-1 && b&0x70 != 0 {
			return 0, i + 1, status.NewError(status.KindMalformedVarInt, "read varint", status.ErrMalformedVarInt)
		}
		value |= uint32(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			return int32(value), i + 1, nil
		}
	}
	return 0, MaxVarIntLen, status.NewError(status.KindMalformedVarInt, "read varint", status.ErrMalformedVarInt)
}

// DecodeVarInt decodes a varint from the start of data.
func DecodeVarInt(data []byte) (int32, int, error) {
	return ReadVarInt(bytes.NewReader(data))
}

// AppendString appends a varint length-prefixed UTF-8 string.
func AppendString(buf []byte, s string) []byte {
	buf = AppendVarInt(buf, int32(len(s)))
	return append(buf, s...)
}

// ReadString decodes a varint length-prefixed string of at most maxLen bytes.
func ReadString(r io.ByteReader, maxLen int) (string, error) {
	n, _, err := ReadVarInt(r)
	if err != nil {
		return "", err
	}
	if n < 0 || int(n) > maxLen {
		return "", status.Errorf(status.KindInvalidData, "read string", "string length %d out of range (max %d)", n, maxLen)
	}

	data := make([]byte, n)
	for i := range data {
		b, err := r.ReadByte()
		if err != nil {
			return "", truncated("read string", err)
		}
		data[i] = b
	}
	return string(data), nil
}

// truncated tags short reads. Other errors are kept as the underlying cause.
func truncated(op string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return status.NewError(status.KindTruncated, op, io.ErrUnexpectedEOF)
	}
	var se *status.Error
	if errors.As(err, &se) {
		return err
	}
	return status.NewError(status.KindTruncated, op, fmt.Errorf("short read: %w", err))
}
