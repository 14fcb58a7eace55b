package server

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/energizer-project/mcwatch/internal/status"
)

// fakeProber answers each call with fn and records how often it ran.
type fakeProber struct {
	fn      func(ctx context.Context, ep status.Endpoint, call int) *status.Snapshot
	calls   atomic.Int32
	running atomic.Int32
	peak    atomic.Int32
}

func (f *fakeProber) Probe(ctx context.Context, ep status.Endpoint) *status.Snapshot {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	call := int(f.calls.Add(1))
	return f.fn(ctx, ep, call)
}

func alwaysOnline(players int, sample ...status.PlayerRef) *fakeProber {
	return &fakeProber{fn: func(context.Context, status.Endpoint, int) *status.Snapshot {
		return onlineSnapshot(players, sample...)
	}}
}

func alwaysFailing(kind status.Kind) *fakeProber {
	return &fakeProber{fn: func(context.Context, status.Endpoint, int) *status.Snapshot {
		return failedSnapshot(kind)
	}}
}

func onlineSnapshot(players int, sample ...status.PlayerRef) *status.Snapshot {
	return status.NewSnapshot(time.Now(), time.Millisecond, status.Result{
		Motd:           "§aA Minecraft Server",
		MaxPlayers:     20,
		CurrentPlayers: players,
		Version:        "1.16.5",
		Protocol:       753,
		Sample:         sample,
	})
}

func failedSnapshot(kind status.Kind) *status.Snapshot {
	return status.NewFailed(time.Now(), time.Millisecond, status.NewError(kind, "dial", errors.New("boom")))
}

func player(id, name string) status.PlayerRef {
	return status.PlayerRef{ID: id, RawName: name}
}

func testIcon(t *testing.T) *status.Icon {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	icon, err := status.DecodeIcon(buf.Bytes())
	require.NoError(t, err)
	return icon
}

func endpoint(t *testing.T, addr string) status.Endpoint {
	t.Helper()

	ep, err := status.ParseEndpoint(addr)
	require.NoError(t, err)
	return ep
}

// factory hands out one fakeProber per endpoint key.
type factory struct {
	mu      sync.Mutex
	probers map[string]*fakeProber
	build   func() *fakeProber
}

func newFactory(build func() *fakeProber) *factory {
	return &factory{probers: make(map[string]*fakeProber), build: build}
}

func (f *factory) prober(ep status.Endpoint) *fakeProber {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.probers[ep.Key()]
	if !ok {
		p = f.build()
		f.probers[ep.Key()] = p
	}
	return p
}
