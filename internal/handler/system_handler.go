package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/response"
)

const healthTimeout = 2 * time.Second

// SystemHandler reports liveness of the server and its backing stores.
type SystemHandler struct {
	pool      *pgxpool.Pool // nil on the in-memory store
	rdb       *redis.Client
	startTime time.Time
}

func NewSystemHandler(pool *pgxpool.Pool, rdb *redis.Client) *SystemHandler {
	return &SystemHandler{pool: pool, rdb: rdb, startTime: time.Now()}
}

type healthReport struct {
	Status          string `json:"status"`
	Postgres        string `json:"postgres"`
	Redis           string `json:"redis"`
	QueueViolations int64  `json:"queue_violations"`
	Uptime          string `json:"uptime"`
	Goroutines      int    `json:"goroutines"`
	GoVersion       string `json:"go_version"`
}

// Health godoc
// GET /health
// Responds 503 when Redis or PostgreSQL cannot be reached.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	report := healthReport{
		Status:     "ok",
		Postgres:   "disabled",
		Redis:      "ok",
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		GoVersion:  runtime.Version(),
	}

	if h.pool != nil {
		report.Postgres = "ok"
		if err := h.pool.Ping(ctx); err != nil {
			report.Postgres = err.Error()
			report.Status = "degraded"
		}
	}

	if err := h.rdb.Ping(ctx).Err(); err != nil {
		report.Redis = err.Error()
		report.Status = "degraded"
	} else {
		report.QueueViolations, _ = h.rdb.LLen(ctx, config.WorkerKey.PersistViolationsQueue).Result()
	}

	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	response.Success(c, status, report)
}
