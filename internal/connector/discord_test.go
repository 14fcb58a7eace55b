package connector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/mcwatch/internal/config"
	"github.com/energizer-project/mcwatch/internal/events"
	"github.com/energizer-project/mcwatch/internal/status"
)

type webhookBody struct {
	Username string `json:"username"`
	Embeds   []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Color       int    `json:"color"`
	} `json:"embeds"`
}

func TestDiscordNotifierPostsRenderedBatch(t *testing.T) {
	received := make(chan webhookBody, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body webhookBody
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		received <- body
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	dn := NewDiscordNotifier(config.DiscordConfig{Enabled: true, WebhookURL: srv.URL, Username: "mcwatch"},
		events.DefaultMessages())

	batch := events.NewBatch("hub", status.Endpoint{Host: "mc.example", Port: 25565}, []events.Event{
		events.NewOnlineStatus("hub", events.OnlineStatusPayload{Online: false, ErrorSummary: "Connection Failed: ConnectTimeout"}),
		events.NewPlayerCount("hub", -1),
		events.NewPlayerLeft("hub", status.PlayerRef{ID: "u1", RawName: "§eSteve"}),
	})
	require.NoError(t, dn.OnBatch(context.Background(), batch))

	body := <-received
	assert.Equal(t, "mcwatch", body.Username)
	require.Len(t, body.Embeds, 1)
	assert.Equal(t, "hub (mc.example:25565)", body.Embeds[0].Title)
	assert.Equal(t, colorOffline, body.Embeds[0].Color)
	assert.Equal(t,
		"Server status: offline\r\nReason:\r\n<code>Connection Failed: ConnectTimeout</code>\r\n1 player left.\r\n- Steve",
		body.Embeds[0].Description)
}

func TestDiscordNotifierReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	dn := NewDiscordNotifier(config.DiscordConfig{Enabled: true, WebhookURL: srv.URL}, events.DefaultMessages())
	batch := events.NewBatch("hub", status.Endpoint{Host: "mc.example", Port: 25565},
		[]events.Event{events.NewPlayerCount("hub", 1)})

	err := dn.OnBatch(context.Background(), batch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestDiscordNotifierSkipsEmptyBatch(t *testing.T) {
	dn := NewDiscordNotifier(config.DiscordConfig{WebhookURL: "http://127.0.0.1:1"}, events.DefaultMessages())
	assert.NoError(t, dn.OnBatch(context.Background(), events.Batch{Label: "x"}))
}

func TestBatchColor(t *testing.T) {
	online := events.Batch{Events: []events.Event{
		events.NewOnlineStatus("a", events.OnlineStatusPayload{Online: true}),
	}}
	players := events.Batch{Events: []events.Event{events.NewPlayerCount("a", 3)}}

	assert.Equal(t, colorOnline, batchColor(online))
	assert.Equal(t, colorPlayers, batchColor(players))
}
