package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/mcwatch/internal/config"
	"github.com/energizer-project/mcwatch/internal/network"
	"github.com/energizer-project/mcwatch/internal/server"
	"github.com/energizer-project/mcwatch/internal/status"
)

type onlineProber struct{}

func (onlineProber) Probe(ctx context.Context, ep status.Endpoint) *status.Snapshot {
	return status.NewSnapshot(time.Now(), 12*time.Millisecond, status.Result{
		Motd:           "§bHello",
		MaxPlayers:     10,
		CurrentPlayers: 1,
		Version:        "1.20.1",
		Protocol:       763,
		Sample:         []status.PlayerRef{{ID: "u1", RawName: "§aAlex"}},
	})
}

func newTestCLI(t *testing.T, input string) (*CLI, *server.Manager, *config.Config, *bytes.Buffer) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.SetPath(filepath.Join(t.TempDir(), "config.yaml"))

	mcfg := server.DefaultConfig()
	mcfg.Tracker.Retries = 1
	manager := server.NewManager(mcfg, server.WithProberFactory(func(status.Endpoint) network.Prober {
		return onlineProber{}
	}))
	t.Cleanup(manager.Dispose)

	out := &bytes.Buffer{}
	return NewCLI(cfg, manager, strings.NewReader(input), out), manager, cfg, out
}

func run(t *testing.T, c *CLI) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Start(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("CLI did not stop at end of input")
	}
}

func TestAddPingStatusRemove(t *testing.T) {
	c, manager, cfg, out := newTestCLI(t, strings.Join([]string{
		"add mc.example.com survival",
		"ping",
		"status",
		"status survival",
		"remove survival",
		"status",
	}, "\n")+"\n")

	run(t, c)
	text := out.String()

	assert.Contains(t, text, "Watching mc.example.com:25565 as 'survival'")
	assert.Contains(t, text, "[survival]")
	assert.Contains(t, text, "Server status: online")
	assert.Contains(t, text, "+ Alex")
	assert.Contains(t, text, "ONLINE")
	assert.Contains(t, text, "1/10")
	assert.Contains(t, text, "MOTD:         Hello")
	assert.Contains(t, text, "Stopped watching 'survival'")
	assert.Contains(t, text, "No servers are being watched.")

	assert.Empty(t, manager.Observers())

	saved, err := config.Load(cfg.Path())
	require.NoError(t, err)
	assert.Empty(t, saved.Servers)
}

func TestQuitStopsBeforeRemainingInput(t *testing.T) {
	c, _, _, out := newTestCLI(t, "quit\nadd a.example\n")

	run(t, c)
	assert.Contains(t, out.String(), "Shutting down mcwatch...")
	assert.NotContains(t, out.String(), "Watching")
}

func TestCommandErrors(t *testing.T) {
	c, _, _, out := newTestCLI(t, "add\nadd host:0\nremove nope\nstatus nope\nbogus\nadd a.example x\nadd b.example x\n")

	run(t, c)
	text := out.String()

	assert.Contains(t, text, "Error: usage: add <host[:port]> [label]")
	assert.Contains(t, text, "Error: server not found: nope")
	assert.Contains(t, text, "Unknown command: 'bogus'")
	assert.Contains(t, text, "Error: label already in use: x")
}

func TestStatusRow(t *testing.T) {
	ep := status.Endpoint{Host: "a.example", Port: 25565}

	assert.Equal(t, "PENDING", StatusRow("a", ep, nil)[2])

	failed := status.NewFailed(time.Now(), time.Second, status.NewError(status.KindConnectTimeout, "connect", nil))
	row := StatusRow("a", ep, failed)
	assert.Equal(t, "OFFLINE", row[2])
	assert.Equal(t, "-", row[3])

	row = StatusRow("a", ep, onlineProber{}.Probe(context.Background(), ep))
	assert.Equal(t, []string{"a", "a.example:25565", "ONLINE", "1/10", "1.20.1", "12ms"}, row[:6])
}
