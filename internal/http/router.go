package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/taskflowhq/taskflow/internal/auth"
	"github.com/taskflowhq/taskflow/internal/cache"
	"github.com/taskflowhq/taskflow/internal/config"
	"github.com/taskflowhq/taskflow/internal/http/handlers"
	"github.com/taskflowhq/taskflow/internal/http/middlewares"
	"github.com/taskflowhq/taskflow/internal/observability"
	"github.com/taskflowhq/taskflow/internal/repo/postgres"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func NewRouter(cfg config.Config, log *slog.Logger, pool *pgxpool.Pool, cacheStore cache.Store, prom *observability.Prom) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(log))
	r.Use(otelgin.Middleware("taskflow-api"))

	if prom != nil {
		r.Use(prom.GinHandleMiddleware())
	}

	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(cfg.MaxBodyBytes))
	r.Use(middlewares.RequireJSON())

	// health
	ping := func() error {
		if pool == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return pool.Ping(ctx)
	}

	health := handlers.NewHealthHandler(ping)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// wire up repositories
	usersRepo := postgres.NewUsersRepo(pool)
	tokensRepo := postgres.NewRefreshTokensRepo(pool, prom)
	projectsRepo := postgres.NewProjectsRepo(pool)
	tasksRepo := postgres.NewTasksRepo(pool)

	jwtManager := auth.NewManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTTL(), cfg.RefreshTTL())

	// handlers
	authHandler := handlers.NewAuthHandler(usersRepo, tokensRepo, jwtManager, prom)
	projectsHandler := handlers.NewProjectsHandler(projectsRepo, usersRepo, tasksRepo, cacheStore)
	tasksHandler := handlers.NewTasksHandler(tasksRepo, projectsRepo, cacheStore)
	usersHandler := handlers.NewUsersHandler(usersRepo, tasksRepo, projectsRepo, tokensRepo, cacheStore)

	authMW := middlewares.NewAuthMiddleware(jwtManager, usersRepo)
	projectAccess := middlewares.NewProjectAccess(projectsRepo)

	authLimiter := middlewares.NewRateLimiter(20, time.Minute)
	apiLimiter := middlewares.NewRateLimiter(300, time.Minute)

	api := r.Group("/api")

	api.GET("/health", health.Healthz)

	// public auth routes, rate limited by IP
	authRoutes := api.Group("/auth", authLimiter.RateLimiterMiddleware(middlewares.KeyByIP))
	authRoutes.POST("/register", authHandler.Register)
	authRoutes.POST("/login", authHandler.Login)
	authRoutes.POST("/refresh", authHandler.Refresh)
	authRoutes.POST("/logout", authHandler.Logout)

	protected := api.Group("", authMW.RequireAuth(), apiLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP))

	users := protected.Group("/users")
	users.GET("/profile", usersHandler.Profile)
	users.PUT("/profile", usersHandler.UpdateProfile)
	users.PUT("/password", usersHandler.ChangePassword)
	users.GET("/tasks", usersHandler.MyTasks)
	users.GET("/dashboard", usersHandler.Dashboard)

	admin := users.Group("", authMW.RequireAdmin())
	admin.GET("", usersHandler.AdminList)
	admin.GET("/:id", usersHandler.AdminGet)
	admin.PUT("/:id", usersHandler.AdminUpdate)
	admin.DELETE("/:id", usersHandler.AdminDelete)

	projects := protected.Group("/projects")
	projects.GET("", projectsHandler.List)
	projects.POST("", projectsHandler.Create)
	projects.GET("/:id", projectAccess.RequireAccess(), projectsHandler.Get)
	projects.GET("/:id/stats", projectAccess.RequireAccess(), projectsHandler.Stats)
	projects.PUT("/:id", projectAccess.RequireOwner(), projectsHandler.Update)
	projects.DELETE("/:id", projectAccess.RequireOwner(), projectsHandler.Delete)
	projects.POST("/:id/team", projectAccess.RequireOwner(), projectsHandler.AddTeamMember)
	projects.DELETE("/:id/team/:userId", projectAccess.RequireOwner(), projectsHandler.RemoveTeamMember)

	// task access resolves through the parent project inside the handlers
	tasks := protected.Group("/tasks")
	tasks.GET("", tasksHandler.List)
	tasks.POST("", tasksHandler.Create)
	tasks.GET("/:id", tasksHandler.Get)
	tasks.PUT("/:id", tasksHandler.Update)
	tasks.DELETE("/:id", tasksHandler.Delete)
	tasks.PUT("/:id/status", tasksHandler.UpdateStatus)
	tasks.POST("/:id/comments", tasksHandler.AddComment)
	tasks.PUT("/:id/time", tasksHandler.LogTime)

	return r
}
