package api

import (
	"github.com/gin-gonic/gin"

	"github.com/mkline/granary/internal/api/handler"
	"github.com/mkline/granary/internal/api/middleware"
	"github.com/mkline/granary/internal/audit"
	"github.com/mkline/granary/internal/logger"
	"github.com/mkline/granary/internal/pipeline"
)

// SetupRouter configures the Gin router for the status server.
// Parameters:
//   - loop: running ingest loop, for counters and run identity.
//   - auditLog: audit trail, for the recent-events endpoint.
//   - history: processed-file ledger reader.
//   - log: base logger.
//   - mode: gin mode (release, debug, test).
// Returns:
//   - *gin.Engine: configured router.
func SetupRouter(
	loop *pipeline.Loop,
	auditLog *audit.Log,
	history handler.HistoryLister,
	log *logger.Logger,
	mode string,
) *gin.Engine {
	switch mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(log))

	statusHandler := handler.NewStatusHandler(loop, auditLog, history)

	r.GET("/health", statusHandler.Health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/stats", statusHandler.Stats)
		v1.GET("/events", statusHandler.Events)
		v1.GET("/files", statusHandler.History)
	}

	return r
}
