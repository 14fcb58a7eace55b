package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/mcwatch/internal/config"
	"github.com/energizer-project/mcwatch/internal/events"
	"github.com/energizer-project/mcwatch/internal/server"
	"github.com/energizer-project/mcwatch/internal/status"
)

type playerView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

type snapshotView struct {
	RequestedAt    time.Time       `json:"requested_at"`
	CompletedAt    time.Time       `json:"completed_at"`
	ElapsedMs      int64           `json:"elapsed_ms"`
	Success        bool            `json:"success"`
	Error          *status.Failure `json:"error,omitempty"`
	Summary        string          `json:"summary,omitempty"`
	Motd           string          `json:"motd"`
	DisplayMotd    string          `json:"display_motd"`
	Version        string          `json:"version"`
	Protocol       int             `json:"protocol,omitempty"`
	CurrentPlayers int             `json:"current_players"`
	MaxPlayers     int             `json:"max_players"`
	Sample         []playerView    `json:"sample"`
	HasIcon        bool            `json:"has_icon"`
}

type notifyView struct {
	OnlineStatus bool `json:"online_status"`
	Count        bool `json:"count"`
	Names        bool `json:"names"`
}

type serverView struct {
	Label    string        `json:"label"`
	Endpoint string        `json:"endpoint"`
	Notify   notifyView    `json:"notify"`
	Latest   *snapshotView `json:"latest"`
}

func newSnapshotView(s *status.Snapshot) *snapshotView {
	if s == nil {
		return nil
	}

	v := &snapshotView{
		RequestedAt:    s.RequestedAt,
		CompletedAt:    s.CompletedAt(),
		ElapsedMs:      s.ElapsedMs(),
		Success:        s.Success,
		Error:          s.Error,
		Motd:           s.MotdRaw,
		DisplayMotd:    s.DisplayMotd(),
		Version:        s.Version,
		Protocol:       s.Protocol,
		CurrentPlayers: s.CurrentPlayers,
		MaxPlayers:     s.MaxPlayers,
		Sample:         make([]playerView, 0, len(s.Sample)),
		HasIcon:        s.HasIcon(),
	}
	if !s.Success {
		v.Summary = s.Error.Summary()
	}
	for _, p := range s.Sample {
		v.Sample = append(v.Sample, playerView{ID: p.ID, Name: p.RawName, DisplayName: p.DisplayName()})
	}
	return v
}

func newServerView(o *server.Observer) serverView {
	online, count, names := o.Notify()
	latest, _ := o.Tracker().LatestSnapshot(false)
	return serverView{
		Label:    o.Label(),
		Endpoint: o.Endpoint().String(),
		Notify:   notifyView{OnlineStatus: online, Count: count, Names: names},
		Latest:   newSnapshotView(latest),
	}
}

// observer resolves the :label parameter or writes a 404.
func (s *Server) observer(c *gin.Context) (*server.Observer, bool) {
	o, ok := s.manager.ObserverByLabel(c.Param("label"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
		return nil, false
	}
	return o, true
}

// handleListServers returns every observer with its latest snapshot.
func (s *Server) handleListServers(c *gin.Context) {
	observers := s.manager.Observers()
	views := make([]serverView, 0, len(observers))
	for _, o := range observers {
		views = append(views, newServerView(o))
	}
	c.JSON(http.StatusOK, gin.H{
		"servers": views,
		"total":   len(views),
	})
}

// handleGetServer returns one observer.
func (s *Server) handleGetServer(c *gin.Context) {
	o, ok := s.observer(c)
	if !ok {
		return
	}
	view := newServerView(o)

	players := o.OnlinePlayers()
	online := make([]playerView, 0, len(players))
	for _, p := range players {
		online = append(online, playerView{ID: p.ID, Name: p.RawName, DisplayName: p.DisplayName()})
	}

	c.JSON(http.StatusOK, gin.H{
		"server":         view,
		"online_players": online,
	})
}

// handleGetHistory returns the retained snapshots, oldest first.
func (s *Server) handleGetHistory(c *gin.Context) {
	o, ok := s.observer(c)
	if !ok {
		return
	}

	history := o.Tracker().History()
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 && limit < len(history) {
		history = history[len(history)-limit:]
	}

	views := make([]*snapshotView, 0, len(history))
	for _, snap := range history {
		views = append(views, newSnapshotView(snap))
	}
	c.JSON(http.StatusOK, gin.H{
		"label":     o.Label(),
		"snapshots": views,
		"total":     len(views),
	})
}

// handleGetIcon serves the latest successful snapshot's favicon.
func (s *Server) handleGetIcon(c *gin.Context) {
	o, ok := s.observer(c)
	if !ok {
		return
	}

	latest, ok := o.Tracker().LatestSnapshot(true)
	if !ok || !latest.HasIcon() {
		c.JSON(http.StatusNotFound, gin.H{"error": "no icon available"})
		return
	}

	data := latest.Icon.PNG()
	if data == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no icon available"})
		return
	}
	c.Header("Cache-Control", "max-age=60")
	c.Data(http.StatusOK, "image/png", data)
}

// createServerRequest is the body of POST /api/servers.
type createServerRequest struct {
	config.ServerConfig
	// Persist writes the new server to the config file.
	Persist bool `json:"persist"`
}

// handleCreateServer registers a new observer.
func (s *Server) handleCreateServer(c *gin.Context) {
	var req createServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.Label == "" {
		req.Label = req.Address
	}

	ep, err := status.ParseEndpoint(req.Address)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, exists := s.manager.ObserverByLabel(req.Label); exists {
		c.JSON(http.StatusConflict, gin.H{"error": "label already in use"})
		return
	}

	o := s.manager.Make(ep, req.ForceNew, req.Label)
	o.SetNotify(req.Notify())

	if req.Persist && s.cfg.Path() != "" {
		s.cfg.AddServer(req.ServerConfig)
		if err := s.cfg.Save(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to save config after adding server")
		}
	}

	c.JSON(http.StatusCreated, gin.H{"server": newServerView(o)})
}

// handleDeleteServer destroys an observer.
func (s *Server) handleDeleteServer(c *gin.Context) {
	o, ok := s.observer(c)
	if !ok {
		return
	}

	s.manager.Destroy(o)

	if c.Query("persist") == "true" && s.cfg.Path() != "" && s.cfg.RemoveServer(o.Label()) {
		if err := s.cfg.Save(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to save config after removing server")
		}
	}

	c.JSON(http.StatusOK, gin.H{"removed": o.Label()})
}

// handlePingAll runs one full update round and returns its batches.
func (s *Server) handlePingAll(c *gin.Context) {
	batches, err := s.manager.Update(c.Request.Context())
	if batches == nil {
		batches = []events.Batch{}
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   err.Error(),
			"batches": batches,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"batches": batches,
		"total":   len(batches),
	})
}
