package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // a slow query must not stall the SSE loop
)

// MonitorHandler streams a test's live state to its teacher.
type MonitorHandler struct {
	rdb            *redis.Client
	monitorService *service.MonitorService
	log            zerolog.Logger
}

func NewMonitorHandler(rdb *redis.Client, monitorService *service.MonitorService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorTestSSE godoc
// GET /api/v1/teacher/tests/:id/monitor
// Sends a snapshot, then forwards session, violation and submission events
// as they happen, with a periodic refresh while the test is active.
func (h *MonitorHandler) MonitorTestSSE(c *gin.Context) {
	claims := middleware.GetClaims(c)
	testID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	reqCtx := c.Request.Context()

	snap, err := h.snapshot(reqCtx, claims.UserID, testID)
	if err != nil {
		response.FailError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("message", gin.H{"type": "snapshot", "data": snap})
	c.Writer.Flush()

	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.TestMonitorChannel(testID.String()))
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()
	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	// refreshes are skipped until something happens on the test
	active := false

	log := h.log.With().Str("test_id", testID.String()).Int("teacher_id", claims.UserID).Logger()
	log.Info().Msg("Teacher attached to live monitor")

	for {
		select {
		case <-reqCtx.Done():
			log.Info().Msg("Teacher detached from live monitor")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// payloads are already JSON
			_, _ = c.Writer.WriteString("data: " + msg.Payload + "\n\n")
			c.Writer.Flush()
			active = true

		case <-refreshTicker.C:
			if !active {
				continue
			}
			snap, err := h.snapshot(reqCtx, claims.UserID, testID)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to refresh monitor snapshot")
				continue
			}
			c.SSEvent("message", gin.H{"type": "refresh", "data": snap})
			c.Writer.Flush()

		case <-keepAliveTicker.C:
			c.SSEvent("message", gin.H{"type": "ping"})
			c.Writer.Flush()
		}
	}
}

func (h *MonitorHandler) snapshot(parent context.Context, teacherID int, testID uuid.UUID) (*service.MonitorSnapshot, error) {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()
	return h.monitorService.Snapshot(ctx, teacherID, testID)
}
