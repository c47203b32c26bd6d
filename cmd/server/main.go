package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/alert"
	"github.com/stemsi/exstem-proctor/internal/analyzer"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/facedetect"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/repository/memory"
	"github.com/stemsi/exstem-proctor/internal/router"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
	"github.com/stemsi/exstem-proctor/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, "server")
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("storage", cfg.StorageDriver).
		Str("analyzer", cfg.Analyzer.Strategy).
		Msg("Starting ExStem Proctor")

	validator.Setup()
	metrics.Register()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Storage ───────────────────────────────────────────────────────
	var (
		pool  *pgxpool.Pool
		users service.UserStore
		tests service.TestStore
	)
	switch cfg.StorageDriver {
	case config.StorageDriverPostgres:
		pool, err = database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
		users = repository.NewUserRepository(pool)
		tests = repository.NewTestRepository(pool)
	case config.StorageDriverMemory:
		log.Warn().Msg("Using in-memory storage, data is lost on restart")
		users = memory.NewUserStore()
		tests = memory.NewTestStore()
	default:
		log.Fatal().Str("driver", cfg.StorageDriver).Msg("Unknown STORAGE_DRIVER")
	}
	monitorRepo := repository.NewMonitorRepository(pool, rdb)

	// ─── Analysis & Detection ──────────────────────────────────────────
	strategy, err := analyzer.New(cfg.Analyzer, rdb, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure content analyzer")
	}
	detector := facedetect.NewClient(cfg.FaceDetectorURL, cfg.FaceDetectorTimeout)
	if !detector.Configured() {
		log.Warn().Msg("FACE_DETECTOR_URL is not set, every frame will be reported as a detector error")
	}

	// ─── Alerts ────────────────────────────────────────────────────────
	hub := alert.NewHub(16)
	relay := alert.NewRelay(rdb, hub, log)
	publisher := alert.NewPublisher(rdb)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb, users, log)
	testService := service.NewTestService(tests, users, log)
	submissionService := service.NewSubmissionService(tests, strategy, cfg.ForcedAnswerPlaceholder, log)
	proctorService := service.NewProctorSessionService(rdb, tests, detector, publisher, cfg.ProctorSessionTTL, pool != nil, log)
	monitorService := service.NewMonitorService(testService, monitorRepo)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService),
		Test:    handler.NewTestHandler(testService),
		Student: handler.NewStudentHandler(testService, submissionService, proctorService),
		Proctor: handler.NewProctorHandler(proctorService, cfg.FrameMaxBytes),
		WS:      handler.NewWSHandler(hub, proctorService, log, cfg.AllowedOrigins),
		Monitor: handler.NewMonitorHandler(rdb, monitorService, log),
		System:  handler.NewSystemHandler(pool, rdb),
	}
	limiters := &router.Limiters{
		Auth:   middleware.NewRateLimiter(0.5, 10),
		Frames: middleware.NewRateLimiter(cfg.FrameRatePerSec, cfg.FrameRateBurst),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	workers.Add(1)
	go func() {
		defer workers.Done()
		if err := relay.Run(workerCtx); err != nil {
			log.Error().Err(err).Msg("Alert relay stopped")
		}
	}()
	go limiters.Auth.Run(workerCtx.Done())
	go limiters.Frames.Run(workerCtx.Done())

	if pool != nil {
		violationWorker := worker.NewViolationWorker(pool, rdb, log)
		workers.Add(1)
		go func() {
			defer workers.Done()
			violationWorker.Start(workerCtx)
		}()
	}

	select {
	case <-relay.Ready():
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Alert relay not subscribed yet, starting anyway")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, limiters, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests. Alert and monitor streams are
	// long-lived, so they are cut when the timeout expires.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the relay and let the violation worker flush its buffer.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
