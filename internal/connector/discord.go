// Package connector delivers event batches to external chat services.
package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/energizer-project/mcwatch/internal/config"
	"github.com/energizer-project/mcwatch/internal/events"
	"github.com/energizer-project/mcwatch/internal/util"
)

// maxDescription is Discord's embed description limit.
const maxDescription = 4096

const (
	colorOnline  = 0x00FF00
	colorOffline = 0xFF0000
	colorPlayers = 0x3498DB
)

// DiscordNotifier posts each event batch to a Discord webhook as an embed.
type DiscordNotifier struct {
	cfg      config.DiscordConfig
	messages events.Messages
	client   *http.Client
	logger   zerolog.Logger
}

// NewDiscordNotifier creates a notifier for the configured webhook.
func NewDiscordNotifier(cfg config.DiscordConfig, messages events.Messages) *DiscordNotifier {
	return &DiscordNotifier{
		cfg:      cfg,
		messages: messages,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   util.ComponentLogger("discord"),
	}
}

// OnBatch is the bus handler; it renders batch and posts it.
func (dn *DiscordNotifier) OnBatch(ctx context.Context, batch events.Batch) error {
	if len(batch.Events) == 0 {
		return nil
	}

	title := batch.Label
	if ep := batch.Endpoint.String(); ep != batch.Label {
		title = fmt.Sprintf("%s (%s)", batch.Label, ep)
	}

	return dn.sendWebhook(ctx, title, dn.messages.RenderBatch(batch), batchColor(batch), batch.At)
}

// sendWebhook posts a single embed.
func (dn *DiscordNotifier) sendWebhook(ctx context.Context, title, message string, color int, at time.Time) error {
	if len(message) > maxDescription {
		message = message[:maxDescription-3] + "..."
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       title,
				"description": message,
				"color":       color,
				"timestamp":   at.Format(time.RFC3339),
			},
		},
	}
	if dn.cfg.Username != "" {
		payload["username"] = dn.cfg.Username
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dn.cfg.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := dn.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(body))
	}

	dn.logger.Debug().Str("title", title).Msg("Discord webhook notification sent")
	return nil
}

// batchColor picks the embed color from the most significant event.
func batchColor(batch events.Batch) int {
	for _, ev := range batch.Events {
		if p, ok := ev.Payload.(events.OnlineStatusPayload); ok {
			if p.Online {
				return colorOnline
			}
			return colorOffline
		}
	}
	return colorPlayers
}
