package network

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/mcwatch/internal/protocol"
	"github.com/energizer-project/mcwatch/internal/status"
)

const statusJSON = `{"description":{"text":"§aHello"},"players":{"max":20,"online":2,` +
	`"sample":[{"id":"u1","name":"Alice"},{"id":"u2","name":"Bob"}]},"version":{"name":"1.20.4","protocol":765}}`

// fakeServer accepts a single connection and hands it to handle.
func fakeServer(t *testing.T, handle func(conn net.Conn)) status.Endpoint {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return status.Endpoint{Host: host, Port: uint16(port)}
}

type handshake struct {
	protocol int32
	host     string
	port     uint16
	next     int32
}

// readStatusRequest consumes the handshake and status request frames.
func readStatusRequest(t *testing.T, r *bufio.Reader) handshake {
	t.Helper()

	hs, err := protocol.ReadFrame(r)
	if !assert.NoError(t, err) {
		return handshake{}
	}
	req, err := protocol.ReadFrame(r)
	if !assert.NoError(t, err) {
		return handshake{}
	}
	assert.Equal(t, protocol.PktStatusRequest, req.ID)
	assert.Empty(t, req.Payload)

	p := bytes.NewReader(hs.Payload)
	var out handshake
	out.protocol, _, _ = protocol.ReadVarInt(p)
	out.host, _ = protocol.ReadString(p, 255)
	var port [2]byte
	io.ReadFull(p, port[:])
	out.port = binary.BigEndian.Uint16(port[:])
	out.next, _, _ = protocol.ReadVarInt(p)
	return out
}

func writeStatus(conn net.Conn, text string) {
	protocol.WriteFrame(conn, protocol.PktStatusResponse, protocol.AppendString(nil, text))
}

func probe(t *testing.T, cfg SessionConfig, ep status.Endpoint, timeout time.Duration) *status.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return NewSession(cfg).Probe(ctx, ep)
}

func TestProbeModernWithTimedPing(t *testing.T) {
	got := make(chan handshake, 1)
	ep := fakeServer(t, func(conn net.Conn) {
		r := bufio.NewReader(conn)
		got <- readStatusRequest(t, r)
		writeStatus(conn, statusJSON)

		ping, err := protocol.ReadFrame(r)
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, protocol.PktPing, ping.ID)
		protocol.WriteFrame(conn, protocol.PktPong, ping.Payload)
	})

	snap := probe(t, DefaultSessionConfig(), ep, 2*time.Second)

	require.True(t, snap.Success, "error: %+v", snap.Error)
	assert.Nil(t, snap.Error)
	assert.Equal(t, "§aHello", snap.MotdRaw)
	assert.Equal(t, "Hello", snap.DisplayMotd())
	assert.Equal(t, 20, snap.MaxPlayers)
	assert.Equal(t, 2, snap.CurrentPlayers)
	assert.Equal(t, "1.20.4", snap.Version)
	assert.Len(t, snap.Sample, 2)
	assert.GreaterOrEqual(t, snap.Elapsed, time.Duration(0))

	hs := <-got
	assert.Equal(t, protocol.DefaultProtocolVersion, hs.protocol)
	assert.Equal(t, ep.Host, hs.host)
	assert.Equal(t, ep.Port, hs.port)
	assert.Equal(t, protocol.NextStateStatus, hs.next)
}

func TestProbeNonceMismatchKeepsStatusTiming(t *testing.T) {
	ep := fakeServer(t, func(conn net.Conn) {
		r := bufio.NewReader(conn)
		readStatusRequest(t, r)
		time.Sleep(40 * time.Millisecond)
		writeStatus(conn, statusJSON)

		if _, err := protocol.ReadFrame(r); err != nil {
			return
		}
		protocol.WriteFrame(conn, protocol.PktPong, protocol.NewPacketBuilder().WriteInt64(-42).Build())
	})

	snap := probe(t, DefaultSessionConfig(), ep, 2*time.Second)
	require.True(t, snap.Success)
	assert.GreaterOrEqual(t, snap.Elapsed, 40*time.Millisecond)
}

func TestProbeServerClosesBeforePong(t *testing.T) {
	ep := fakeServer(t, func(conn net.Conn) {
		readStatusRequest(t, bufio.NewReader(conn))
		writeStatus(conn, statusJSON)
	})

	snap := probe(t, DefaultSessionConfig(), ep, 2*time.Second)
	assert.True(t, snap.Success)
}

func TestProbeWithoutTimedPing(t *testing.T) {
	ep := fakeServer(t, func(conn net.Conn) {
		r := bufio.NewReader(conn)
		readStatusRequest(t, r)
		writeStatus(conn, statusJSON)
		// Hold the connection open; a ping would go unanswered.
		r.ReadByte()
	})

	cfg := DefaultSessionConfig()
	cfg.TimedPing = false
	snap := probe(t, cfg, ep, 2*time.Second)
	assert.True(t, snap.Success)
}

func TestProbeTruncatedResponse(t *testing.T) {
	ep := fakeServer(t, func(conn net.Conn) {
		readStatusRequest(t, bufio.NewReader(conn))
		// Announce 100 bytes, deliver the id and two more, then stall.
		conn.Write([]byte{100, 0x00, 'a', 'b'})
		time.Sleep(time.Second)
	})

	start := time.Now()
	snap := probe(t, DefaultSessionConfig(), ep, 200*time.Millisecond)

	assert.False(t, snap.Success)
	require.NotNil(t, snap.Error)
	assert.Equal(t, status.KindTruncated, snap.Error.Kind)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestProbeEarlyClose(t *testing.T) {
	ep := fakeServer(t, func(conn net.Conn) {
		readStatusRequest(t, bufio.NewReader(conn))
		conn.Write([]byte{100, 0x00, 'a'})
	})

	snap := probe(t, DefaultSessionConfig(), ep, 2*time.Second)
	require.NotNil(t, snap.Error)
	assert.Equal(t, status.KindTruncated, snap.Error.Kind)
}

func TestProbeFormatError(t *testing.T) {
	ep := fakeServer(t, func(conn net.Conn) {
		readStatusRequest(t, bufio.NewReader(conn))
		writeStatus(conn, `{"description":{},"players":{"max":1,"online":0},"version":{"name":"v"}}`)
	})

	cfg := DefaultSessionConfig()
	cfg.TimedPing = false
	snap := probe(t, cfg, ep, 2*time.Second)

	assert.False(t, snap.Success)
	require.NotNil(t, snap.Error)
	assert.Equal(t, status.KindFormat, snap.Error.Kind)
	assert.Equal(t, status.OfflineVersion, snap.Version)
}

func TestProbeFormatErrorSkipsTimedPing(t *testing.T) {
	extra := make(chan int, 1)
	ep := fakeServer(t, func(conn net.Conn) {
		r := bufio.NewReader(conn)
		readStatusRequest(t, r)
		writeStatus(conn, `{"description":{},"players":{"max":1,"online":0},"version":{"name":"v"}}`)

		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _ := r.Read(make([]byte, 16))
		extra <- n
	})

	snap := probe(t, DefaultSessionConfig(), ep, 2*time.Second)

	assert.False(t, snap.Success)
	require.NotNil(t, snap.Error)
	assert.Equal(t, status.KindFormat, snap.Error.Kind)
	assert.Zero(t, <-extra, "no ping should follow an unparseable status")
}

func TestStateOrder(t *testing.T) {
	assert.Less(t, int(StateParsing), int(StateTimedPing))
	assert.Equal(t, "parsing", StateParsing.String())
	assert.Equal(t, "timed_ping", StateTimedPing.String())
}

func TestProbeConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	snap := probe(t, DefaultSessionConfig(), status.Endpoint{Host: "127.0.0.1", Port: uint16(addr.Port)}, time.Second)
	assert.False(t, snap.Success)
	require.NotNil(t, snap.Error)
	assert.Equal(t, status.KindConnectFailed, snap.Error.Kind)
}

func TestProbeCancelledBeforeConnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap := NewSession(DefaultSessionConfig()).Probe(ctx, status.Endpoint{Host: "127.0.0.1", Port: 1})
	assert.False(t, snap.Success)
	require.NotNil(t, snap.Error)
	assert.Equal(t, status.KindConnectTimeout, snap.Error.Kind)
	assert.Equal(t, "Connection Failed: ConnectTimeout", snap.Error.Summary())
}

func TestProbeLegacy(t *testing.T) {
	ep := fakeServer(t, func(conn net.Conn) {
		var hdr [2]byte
		if _, err := io.ReadFull(conn, hdr[:]); !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, []byte{0xFE, 0x01}, hdr[:])

		data, err := protocol.EncodeLegacy(status.Result{
			Motd: "Old server", MaxPlayers: 10, CurrentPlayers: 4, Version: "1.5.2", Protocol: 61,
		})
		if assert.NoError(t, err) {
			conn.Write(data)
		}
	})

	snap := probe(t, SessionConfig{Variant: VariantLegacy}, ep, 2*time.Second)
	require.True(t, snap.Success, "error: %+v", snap.Error)
	assert.Equal(t, "Old server", snap.MotdRaw)
	assert.Equal(t, 4, snap.CurrentPlayers)
	assert.Equal(t, 10, snap.MaxPlayers)
	assert.Equal(t, "1.5.2", snap.Version)
	assert.Empty(t, snap.Sample)
}

func TestProbeLegacyInvalidMarker(t *testing.T) {
	ep := fakeServer(t, func(conn net.Conn) {
		var hdr [2]byte
		io.ReadFull(conn, hdr[:])
		conn.Write([]byte{0x02, 0x00, 0x00})
	})

	snap := probe(t, SessionConfig{Variant: VariantLegacy}, ep, 2*time.Second)
	require.NotNil(t, snap.Error)
	assert.Equal(t, status.KindInvalidData, snap.Error.Kind)
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("Legacy")
	require.NoError(t, err)
	assert.Equal(t, VariantLegacy, v)

	v, err = ParseVariant("")
	require.NoError(t, err)
	assert.Equal(t, VariantModern, v)

	_, err = ParseVariant("bedrock")
	assert.Error(t, err)
}
