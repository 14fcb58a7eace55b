package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/mcwatch/internal/util"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "mcwatch",
		"version": Version,
	})
}

// handleInfo returns host and monitor information.
func (s *Server) handleInfo(c *gin.Context) {
	monitor := s.cfg.GetMonitor()

	c.JSON(http.StatusOK, gin.H{
		"version":          Version,
		"uptime_seconds":   int64(time.Since(s.startedAt).Seconds()),
		"observers":        len(s.manager.Observers()),
		"trackers":         len(s.manager.Trackers()),
		"auto_updating":    s.manager.AutoUpdating(),
		"interval_seconds": monitor.IntervalSeconds,
		"protocol":         monitor.Protocol,
		"journal":          s.journal != nil,
		"system":           util.GetSystemInfo(),
		"load":             util.GetHostLoad(),
	})
}
