package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/energizer-project/mcwatch/internal/db"
	"github.com/energizer-project/mcwatch/internal/events"
)

const (
	streamBufferSize   = 32
	streamWriteTimeout = 5 * time.Second
	streamPingInterval = 30 * time.Second
)

var streamUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

// streamMessage is one batch as sent over the event stream.
type streamMessage struct {
	events.Batch
	Message string `json:"message"`
}

// handleGetEvents returns recent journal entries, newest first.
func (s *Server) handleGetEvents(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event journal is disabled"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := s.journal.Recent(c.Request.Context(), c.Query("label"), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read event journal")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read event journal"})
		return
	}
	if entries == nil {
		entries = []db.JournalEntry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"events": entries,
		"total":  len(entries),
	})
}

// handleEventStream upgrades to a websocket and forwards every published
// batch until the client disconnects.
func (s *Server) handleEventStream(c *gin.Context) {
	conn, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.manager.Bus().Listen("ws-"+uuid.NewString(), streamBufferSize)
	defer sub.Close()

	s.logger.Debug().Str("remote", c.ClientIP()).Msg("event stream opened")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	messages := s.cfg.Messages
	for {
		select {
		case batch := <-sub.C():
			msg := streamMessage{Batch: batch, Message: messages.RenderBatch(batch)}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteTimeout)); err != nil {
				return
			}
		case <-done:
			s.logger.Debug().Str("remote", c.ClientIP()).Msg("event stream closed")
			return
		}
	}
}
