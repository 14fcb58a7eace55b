package db

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/mcwatch/internal/events"
	"github.com/energizer-project/mcwatch/internal/status"
)

func openJournal(t *testing.T) *Journal {
	t.Helper()

	j, err := NewJournal(filepath.Join(t.TempDir(), "data", "journal.db"), events.DefaultMessages())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func testBatch(label string, evs ...events.Event) events.Batch {
	return events.NewBatch(label, status.Endpoint{Host: "mc.example", Port: 25565}, evs)
}

func TestJournalRecordAndRecent(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()

	alice := status.PlayerRef{ID: "u1", RawName: "§cAlice"}
	first := testBatch("hub",
		events.NewPlayerCount("hub", 1),
		events.NewPlayerJoined("hub", alice),
	)
	require.NoError(t, j.Record(ctx, first))
	require.NoError(t, j.Record(ctx, testBatch("lobby", events.NewPlayerCount("lobby", -2))))

	entries, err := j.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "lobby", entries[0].Label, "newest first")
	assert.Equal(t, "2 player left.", entries[0].Message)

	joined := entries[1]
	assert.Equal(t, first.ID, joined.BatchID)
	assert.Equal(t, string(events.EventPlayerJoined), joined.Type)
	assert.Equal(t, "mc.example:25565", joined.Endpoint)
	assert.Equal(t, "+ Alice", joined.Message)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(joined.Payload, &payload))
	assert.Equal(t, "Alice", payload["display_name"])

	assert.WithinDuration(t, first.At, joined.CreatedAt, time.Second)
}

func TestJournalRecentFiltersByLabel(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, testBatch("a", events.NewPlayerCount("a", 1))))
	require.NoError(t, j.Record(ctx, testBatch("b", events.NewPlayerCount("b", 1))))
	require.NoError(t, j.Record(ctx, testBatch("a", events.NewPlayerCount("a", 2))))

	entries, err := j.Recent(ctx, "a", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2 player joined.", entries[0].Message)

	entries, err = j.Recent(ctx, "missing", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJournalHandlerAndEmptyBatch(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Handler()(ctx, testBatch("a")))
	require.NoError(t, j.Handler()(ctx, testBatch("a", events.NewOnlineStatus("a", events.OnlineStatusPayload{
		Online:  true,
		Motd:    "Welcome",
		Version: "1.20.4",
	}))))

	entries, err := j.Recent(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "Server status: online")
}

func TestJournalPrune(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()

	old := testBatch("a", events.NewPlayerCount("a", 1))
	old.At = time.Now().Add(-48 * time.Hour)
	require.NoError(t, j.Record(ctx, old))
	require.NoError(t, j.Record(ctx, testBatch("a", events.NewPlayerCount("a", 1))))

	n, err := j.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := j.Recent(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
