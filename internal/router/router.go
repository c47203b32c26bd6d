package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Test    *handler.TestHandler
	Student *handler.StudentHandler
	Proctor *handler.ProctorHandler
	WS      *handler.WSHandler
	Monitor *handler.MonitorHandler
	System  *handler.SystemHandler
}

// Limiters are the per-key rate limiters applied to route groups.
type Limiters struct {
	Auth   *middleware.RateLimiter
	Frames *middleware.RateLimiter
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	limiters *Limiters,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Metrics())
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", metrics.Handler())

	requireAuth := []gin.HandlerFunc{
		middleware.RequireJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	}

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(middleware.NoStore(), limiters.Auth.Middleware())
	{
		auth.POST("/register", handlers.Auth.Register)
		auth.POST("/login", handlers.Auth.Login)

		auth.GET("/me", append(requireAuth, handlers.Auth.Me)...)
		auth.POST("/logout", append(requireAuth, handlers.Auth.Logout)...)
	}

	// ─── 2. Teacher Group (JWT + Single Device + Role) ─────────────────
	teacherAPI := router.Group("/api/v1/teacher")
	teacherAPI.Use(requireAuth...)
	teacherAPI.Use(middleware.RequireRole(model.RoleTeacher), middleware.NoStore())
	{
		teacherAPI.GET("/students", handlers.Test.ListStudents)
		teacherAPI.GET("/tests", handlers.Test.ListTests)
		teacherAPI.POST("/tests", handlers.Test.CreateTest)
		teacherAPI.POST("/tests/:id/assign", handlers.Test.AssignStudent)
		teacherAPI.GET("/tests/:id/monitor", handlers.Monitor.MonitorTestSSE)
	}

	// ─── 3. Student Group (JWT + Single Device + Role) ─────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(requireAuth...)
	studentAPI.Use(middleware.RequireRole(model.RoleStudent), middleware.NoStore())
	{
		studentAPI.GET("/tests", handlers.Student.GetAssignedTests)
		studentAPI.GET("/tests/:test_id", handlers.Student.GetTest)
		studentAPI.POST("/tests/:test_id/submit", handlers.Student.SubmitTest)

		studentAPI.POST("/tests/:test_id/proctor-sessions", handlers.Proctor.OpenSession)
		studentAPI.POST("/proctor-sessions/:session_id/frames", limiters.Frames.Middleware(), handlers.Proctor.AnalyzeFrame)
		studentAPI.POST("/proctor-sessions/:session_id/violations", handlers.Proctor.ReportViolation)
		studentAPI.DELETE("/proctor-sessions/:session_id", handlers.Proctor.CloseSession)
	}

	// ─── 4. WebSocket Group (token in query) ───────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(requireAuth...)
	ws.Use(middleware.RequireRole(model.RoleStudent))
	{
		ws.GET("/student/proctor-sessions/:session_id/alerts", handlers.WS.AlertStream)
	}

	return router
}
