package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPacketBuilderLayout(t *testing.T) {
	b := NewPacketBuilder().
		WriteVarInt(300).
		WriteUint16(0xABCD).
		WriteInt64(-2).
		WriteString("hi")

	want := []byte{
		0xac, 0x02,
		0xab, 0xcd,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xfe,
		0x02, 'h', 'i',
	}
	assert.Equal(t, want, b.Build())
	assert.Equal(t, append([]byte{byte(len(want) + 1), 0x01}, want...), b.BuildFrame(PktPing))
	assert.Equal(t, append([]byte{byte(len(want))}, want...), b.BuildFrame(NoPacketID))
}
