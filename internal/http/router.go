package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/playhub-backend/internal/http/handlers"
	httpMW "github.com/yungbote/playhub-backend/internal/http/middleware"
	"github.com/yungbote/playhub-backend/internal/observability"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string

	AuthMiddleware  *httpMW.AuthMiddleware
	RealtimeHandler *httpH.RealtimeHandler

	GameHandler     *httpH.GameHandler
	CategoryHandler *httpH.CategoryHandler
	UploadHandler   *httpH.UploadHandler
	JobHandler      *httpH.JobHandler
	// FileHandler is set only when objects are not served by GCS.
	FileHandler *httpH.FileHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	if cfg.FileHandler != nil {
		r.GET("/files/:category/*key", cfg.FileHandler.Serve)
	}

	api := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		api.Use(cfg.AuthMiddleware.OptionalAuth())
	}
	{
		// Public catalog
		if cfg.GameHandler != nil {
			api.GET("/games", cfg.GameHandler.ListGames)
			api.GET("/games/:id", cfg.GameHandler.GetGame)
			api.GET("/search", cfg.GameHandler.Search)
			api.POST("/games/:id/play", cfg.GameHandler.Play)
		}
		if cfg.CategoryHandler != nil {
			api.GET("/categories", cfg.CategoryHandler.ListCategories)
			api.GET("/categories/:id/games", cfg.CategoryHandler.ListCategoryGames)
		}
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Likes
		if cfg.GameHandler != nil {
			protected.POST("/games/:id/like", cfg.GameHandler.Like)
			protected.DELETE("/games/:id/like", cfg.GameHandler.Unlike)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			protected.GET("/sse/stream", cfg.RealtimeHandler.SSEStream)
		}
	}

	admin := protected.Group("/admin")
	{
		if cfg.AuthMiddleware != nil {
			admin.Use(cfg.AuthMiddleware.RequireAdmin())
		}

		if cfg.UploadHandler != nil {
			admin.POST("/uploads", cfg.UploadHandler.Upload)
		}

		if cfg.GameHandler != nil {
			admin.POST("/games", cfg.GameHandler.CreateGame)
			admin.POST("/games/status", cfg.GameHandler.BulkSetStatus)
			admin.PATCH("/games/:id", cfg.GameHandler.UpdateGame)
			admin.PUT("/games/:id/archive", cfg.GameHandler.ReuploadArchive)
			admin.PATCH("/games/:id/status", cfg.GameHandler.SetStatus)
			admin.DELETE("/games/:id", cfg.GameHandler.DeleteGame)
			admin.GET("/games/:id/processing", cfg.GameHandler.ProcessingStatus)
			admin.POST("/games/:id/retry", cfg.GameHandler.Retry)
		}

		if cfg.CategoryHandler != nil {
			admin.POST("/categories", cfg.CategoryHandler.CreateCategory)
			admin.PATCH("/categories/:id", cfg.CategoryHandler.RenameCategory)
		}

		if cfg.JobHandler != nil {
			admin.GET("/jobs/:id", cfg.JobHandler.GetJob)
		}
	}

	return r
}
