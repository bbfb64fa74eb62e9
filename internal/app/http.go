package app

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/playhub-backend/internal/http"
	httpH "github.com/yungbote/playhub-backend/internal/http/handlers"
	httpMW "github.com/yungbote/playhub-backend/internal/http/middleware"
	"github.com/yungbote/playhub-backend/internal/observability"
	"github.com/yungbote/playhub-backend/internal/platform/gcp"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
	"github.com/yungbote/playhub-backend/internal/realtime"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health   *httpH.HealthHandler
	Realtime *httpH.RealtimeHandler
	Game     *httpH.GameHandler
	Category *httpH.CategoryHandler
	Upload   *httpH.UploadHandler
	Job      *httpH.JobHandler
	File     *httpH.FileHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, cfg Config, services Services, storage gcp.BucketService, sseHub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	h := Handlers{
		Health:   httpH.NewHealthHandler(db),
		Realtime: httpH.NewRealtimeHandler(log, sseHub),
		Game:     httpH.NewGameHandler(services.Games, services.Intake, services.Likes),
		Category: httpH.NewCategoryHandler(services.Categories, services.Games),
		Upload:   httpH.NewUploadHandler(services.Uploads),
		Job:      httpH.NewJobHandler(services.JobService),
	}
	// GCS serves published files itself
	if !gcp.IsGCSObjectStorageMode(gcp.ObjectStorageMode(cfg.ObjectStorageMode)) {
		h.File = httpH.NewFileHandler(storage)
	}
	return h
}

func wireMiddleware(log *logger.Logger, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Auth),
	}
}

func wireRouter(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware, metrics *observability.Metrics) *gin.Engine {
	log.Info("Wiring router...")
	serviceName := ""
	if observability.OtelEnabled() {
		serviceName = cfg.ServiceName
	}
	return http.NewRouter(http.RouterConfig{
		Log:             log,
		Metrics:         metrics,
		ServiceName:     serviceName,
		CORSOrigins:     cfg.CORSOrigins,
		AuthMiddleware:  middleware.Auth,
		RealtimeHandler: handlers.Realtime,
		GameHandler:     handlers.Game,
		CategoryHandler: handlers.Category,
		UploadHandler:   handlers.Upload,
		JobHandler:      handlers.Job,
		FileHandler:     handlers.File,
		HealthHandler:   handlers.Health,
	})
}
