package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/mcwatch/internal/status"
)

func batch(label string, n int) Batch {
	evs := make([]Event, n)
	for i := range evs {
		evs[i] = NewPlayerCount(label, i+1)
	}
	return NewBatch(label, status.Endpoint{Host: "h", Port: 1}, evs)
}

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewEventBus(4)
	bus.Start()

	var mu sync.Mutex
	var got []string
	bus.Subscribe("collector", func(ctx context.Context, b Batch) error {
		mu.Lock()
		got = append(got, b.Label)
		mu.Unlock()
		return nil
	})

	for _, l := range []string{"a", "b", "c", "d", "e", "f"} {
		require.NoError(t, bus.Publish(context.Background(), batch(l, 1)))
	}
	bus.Stop()

	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, got)
}

func TestBusSurvivesFailingHandlers(t *testing.T) {
	bus := NewEventBus(1)
	bus.Start()

	delivered := make(chan string, 2)
	bus.Subscribe("panics", func(ctx context.Context, b Batch) error { panic("boom") })
	bus.Subscribe("errors", func(ctx context.Context, b Batch) error { return errors.New("nope") })
	bus.Subscribe("ok", func(ctx context.Context, b Batch) error {
		delivered <- b.Label
		return nil
	})
	assert.Equal(t, 3, bus.HandlerCount())

	require.NoError(t, bus.Publish(context.Background(), batch("x", 1)))
	require.NoError(t, bus.Publish(context.Background(), batch("y", 1)))
	bus.Stop()

	assert.Equal(t, "x", <-delivered)
	assert.Equal(t, "y", <-delivered)
}

func TestBusPublishAfterStop(t *testing.T) {
	bus := NewEventBus(1)
	bus.Start()
	bus.Stop()
	bus.Stop()

	assert.ErrorIs(t, bus.Publish(context.Background(), batch("x", 1)), ErrBusStopped)
}

func TestBusStopDeliversEveryAcceptedBatch(t *testing.T) {
	for round := 0; round < 50; round++ {
		bus := NewEventBus(2)
		bus.Start()

		var delivered sync.Map
		bus.Subscribe("collector", func(ctx context.Context, b Batch) error {
			delivered.Store(b.Label, true)
			return nil
		})

		var wg sync.WaitGroup
		accepted := make(chan string, 32)
		for i := 0; i < 32; i++ {
			label := string(rune('A' + i))
			wg.Add(1)
			go func() {
				defer wg.Done()
				if bus.Publish(context.Background(), batch(label, 1)) == nil {
					accepted <- label
				}
			}()
		}
		bus.Stop()
		wg.Wait()
		close(accepted)

		for label := range accepted {
			_, ok := delivered.Load(label)
			require.True(t, ok, "round %d: accepted batch %s was never delivered", round, label)
		}
	}
}

func TestBusPublishBlocksWhenFull(t *testing.T) {
	bus := NewEventBus(1)
	// Not started: nothing drains the queue.
	require.NoError(t, bus.Publish(context.Background(), batch("a", 1)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Publish(ctx, batch("b", 1)), context.DeadlineExceeded)
}

func TestSubscriptionReceive(t *testing.T) {
	bus := NewEventBus(4)
	bus.Start()
	defer bus.Stop()

	sub := bus.Listen("stream", 4)
	require.NoError(t, bus.Publish(context.Background(), batch("srv", 2)))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b, err := sub.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "srv", b.Label)
	assert.Len(t, b.Events, 2)
	assert.NotEmpty(t, b.ID)

	sub.Close()
	sub.Close()
	assert.Zero(t, bus.HandlerCount())

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	_, err = sub.Receive(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubscribeReplacesSameName(t *testing.T) {
	bus := NewEventBus(1)
	bus.Subscribe("x", func(ctx context.Context, b Batch) error { return nil })
	bus.Subscribe("x", func(ctx context.Context, b Batch) error { return nil })
	assert.Equal(t, 1, bus.HandlerCount())
	bus.Unsubscribe("x")
	assert.Zero(t, bus.HandlerCount())
}

func TestRenderDefaults(t *testing.T) {
	m := Messages{}
	player := status.PlayerRef{ID: "1", RawName: "§aAlex"}

	assert.Equal(t,
		"Server status: online\r\nVersion: <code>1.20</code>\r\nMOTD:\r\n<code>Hi</code>",
		m.Render(NewOnlineStatus("s", OnlineStatusPayload{Online: true, Motd: "Hi", Version: "1.20"})))
	assert.Equal(t,
		"Server status: offline\r\nReason:\r\n<code>Connection Failed: ConnectTimeout</code>",
		m.Render(NewOnlineStatus("s", OnlineStatusPayload{ErrorSummary: "Connection Failed: ConnectTimeout"})))
	assert.Equal(t, "2 player joined.", m.Render(NewPlayerCount("s", 2)))
	assert.Equal(t, "1 player left.", m.Render(NewPlayerCount("s", -1)))
	assert.Equal(t, "+ Alex", m.Render(NewPlayerJoined("s", player)))
	assert.Equal(t, "- Alex", m.Render(NewPlayerLeft("s", player)))
}

func TestRenderCustomTemplate(t *testing.T) {
	m := Messages{NameJoin: "%name is here"}
	b := NewBatch("s", status.Endpoint{}, []Event{
		NewPlayerCount("s", 1),
		NewPlayerJoined("s", status.PlayerRef{ID: "1", RawName: "Kim"}),
	})
	assert.Equal(t, "1 player joined.\r\nKim is here", m.RenderBatch(b))
}

func TestPlayerPayloadJSON(t *testing.T) {
	data, err := json.Marshal(NewPlayerJoined("s", status.PlayerRef{ID: "u1", RawName: "§lBold"}))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"player_joined","source":"s","payload":{"id":"u1","name":"§lBold","display_name":"Bold"}}`,
		string(data))
}
