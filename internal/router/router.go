package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/examflow/internal/config"
	"github.com/stemsi/examflow/internal/handler"
	"github.com/stemsi/examflow/internal/middleware"
	"github.com/stemsi/examflow/internal/model"
	"github.com/stemsi/examflow/internal/response"
	"github.com/stemsi/examflow/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Test    *handler.TestHandler
	Attempt *handler.AttemptHandler
	Monitor *handler.MonitorHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// authLimiter may be nil to disable rate limiting of the public auth routes.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
	authLimiter *middleware.RateLimiter,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		// The session travels in a cookie.
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", response.HeaderRequestID}
	corsConfig.ExposeHeaders = []string{response.HeaderRequestID}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Compress())
	router.Use(middleware.NoStore())

	router.GET("/health", handlers.System.Health)

	requireAuth := []gin.HandlerFunc{
		middleware.RequireAuth(authService, cfg.CookieName),
		middleware.CheckRevoked(authService),
	}
	studentOnly := middleware.RequireRole(model.RoleStudent)
	teacherOnly := middleware.RequireRole(model.RoleTeacher)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	limited := func(h gin.HandlerFunc) []gin.HandlerFunc {
		if authLimiter == nil {
			return []gin.HandlerFunc{h}
		}
		return []gin.HandlerFunc{authLimiter.Middleware(), h}
	}

	auth := router.Group("/auth")
	{
		auth.POST("/login", limited(handlers.Auth.Login)...)
		auth.POST("/logout", append(requireAuth, handlers.Auth.Logout)...)
		auth.POST("/password-reset", limited(handlers.Auth.RequestPasswordReset)...)
		auth.POST("/password-reset/verify", limited(handlers.Auth.VerifyResetCode)...)
		auth.POST("/password-reset/confirm", limited(handlers.Auth.ConfirmPasswordReset)...)
	}
	router.POST("/users", limited(handlers.Auth.Signup)...)

	// ─── 2. Authenticated API ──────────────────────────────────────────
	api := router.Group("/")
	api.Use(requireAuth...)
	{
		api.GET("/users/me", handlers.Auth.Me)
		api.PUT("/users/change-password", handlers.Auth.ChangePassword)
		api.GET("/users/:userId", middleware.RequireOwner("userId"), handlers.Auth.Profile)
		api.PUT("/users/:userId", middleware.RequireOwner("userId"), handlers.Auth.UpdateProfile)

		// Tests
		api.GET("/tests/passcode/:passcode", studentOnly, handlers.Test.ResolvePasscode)
		api.GET("/tests/:testId/questions", handlers.Test.Questions)
		api.GET("/tests/:testId/students/:studentId/results",
			middleware.RequireSelf("studentId"),
			handlers.Attempt.Detail,
		)
		api.POST("/tests", teacherOnly, handlers.Test.Create)
		api.GET("/tests", teacherOnly, handlers.Test.List)
		api.GET("/tests/:testId/results", teacherOnly, handlers.Test.Results)
	}

	// ─── 3. Student Attempt Group (own records only) ───────────────────
	student := api.Group("/students/:studentId")
	student.Use(studentOnly, middleware.RequireSelf("studentId"))
	{
		student.POST("/results", handlers.Attempt.Open)
		student.PUT("/results", handlers.Attempt.Finalize)
		student.GET("/results", handlers.Attempt.PastResults)
		student.PUT("/questions/:questionId/answers/:answerId", handlers.Attempt.SetChoice)
		student.POST("/answers", handlers.Attempt.SubmitText)
	}

	// ─── 4. WebSocket Group (Teacher) ──────────────────────────────────
	ws := router.Group("/ws")
	ws.Use(requireAuth...)
	ws.Use(teacherOnly)
	{
		ws.GET("/tests/:testId/monitor", handlers.Monitor.Stream)
	}

	return router
}
