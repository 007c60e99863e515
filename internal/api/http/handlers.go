package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/station/internal/domain/devices"
	"github.com/GriffinCanCode/station/internal/domain/library"
	"github.com/GriffinCanCode/station/internal/domain/session"
	"github.com/GriffinCanCode/station/internal/infrastructure/logging"
	"github.com/GriffinCanCode/station/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/station/internal/shared/types"
)

const (
	defaultEventLimit = 100
	streamBuffer      = 64
	pingInterval      = 30 * time.Second
	writeTimeout      = 5 * time.Second
)

// SessionView is the read side of the session controller
type SessionView interface {
	Snapshot() session.Snapshot
}

// DeviceView is the read side of the device model
type DeviceView interface {
	Snapshot() devices.Snapshot
}

// ExperienceView is the read side of the experience library
type ExperienceView interface {
	Summaries() []types.ExperienceSummary
	Stats() library.Stats
}

// Deps holds what the handlers read from
type Deps struct {
	StationID string
	Session   SessionView
	Devices   DeviceView
	Library   ExperienceView
	Events    *EventLog
	Metrics   *monitoring.Metrics
	Logger    *logging.Logger
}

// Handlers contains all diagnostics HTTP handlers
type Handlers struct {
	deps     Deps
	started  time.Time
	logger   *logging.Logger
	upgrader websocket.Upgrader
}

// NewHandlers creates a new handler set
func NewHandlers(deps Deps) *Handlers {
	if deps.Events == nil {
		deps.Events = NewEventLog(1)
	}
	return &Handlers{
		deps:    deps,
		started: time.Now(),
		logger:  deps.Logger.Component("diagnostics"),
		upgrader: websocket.Upgrader{
			// Served on loopback for local tooling only
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Health handles the liveness check
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status":  "healthy",
		"station": h.deps.StationID,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
		"metrics": h.deps.Metrics.Snapshot(),
	}
	if h.deps.Session != nil {
		body["state"] = h.deps.Session.Snapshot().State
	}
	c.JSON(http.StatusOK, body)
}

// State returns the session snapshot
func (h *Handlers) State(c *gin.Context) {
	if h.deps.Session == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session unavailable"})
		return
	}
	c.JSON(http.StatusOK, h.deps.Session.Snapshot())
}

// Devices returns the device model snapshot
func (h *Handlers) Devices(c *gin.Context) {
	if h.deps.Devices == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "device model unavailable"})
		return
	}
	c.JSON(http.StatusOK, h.deps.Devices.Snapshot())
}

// Experiences lists the installed experiences
func (h *Handlers) Experiences(c *gin.Context) {
	if h.deps.Library == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "library unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"experiences": h.deps.Library.Summaries(),
		"stats":       h.deps.Library.Stats(),
	})
}

// Metrics serves the Prometheus registry
func (h *Handlers) Metrics() gin.HandlerFunc {
	handler := promhttp.HandlerFor(h.deps.Metrics.Registry(), promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.deps.Metrics.UpdateUptime()
		handler.ServeHTTP(c.Writer, c.Request)
	}
}

// Events returns recent events as JSON, or streams new ones when the
// request is a WebSocket upgrade
func (h *Handlers) Events(c *gin.Context) {
	if websocket.IsWebSocketUpgrade(c.Request) {
		h.stream(c)
		return
	}

	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{"events": h.deps.Events.Recent(limit)})
}

// stream pushes every new event to a WebSocket client until either side
// goes away
func (h *Handlers) stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.deps.Metrics.IncWSConnections()
	defer h.deps.Metrics.DecWSConnections()

	events, cancel := h.deps.Events.Subscribe(streamBuffer)
	defer cancel()

	// Reads only detect the client closing
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			h.close(conn, websocket.CloseGoingAway)
			return
		case <-gone:
			return
		case ev, ok := <-events:
			if !ok {
				h.close(conn, websocket.CloseGoingAway)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("WebSocket write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *Handlers) close(conn *websocket.Conn, code int) {
	msg := websocket.FormatCloseMessage(code, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}
