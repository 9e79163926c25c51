package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/yungbote/conceptgraph-backend/internal/http/handlers"
	httpMW "github.com/yungbote/conceptgraph-backend/internal/http/middleware"
	"github.com/yungbote/conceptgraph-backend/internal/observability"
	"github.com/yungbote/conceptgraph-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	AuthMiddleware *httpMW.AuthMiddleware
	Metrics        *observability.Metrics

	DocumentHandler *httpH.DocumentHandler
	OntologyHandler *httpH.OntologyHandler
	DispatchHandler *httpH.DispatchHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.CORS())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		if cfg.AuthMiddleware != nil {
			api.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Documents
		if cfg.DocumentHandler != nil {
			api.POST("/documents/process", cfg.DocumentHandler.ProcessDocument)
		}

		// Ontology curation
		if cfg.OntologyHandler != nil {
			api.GET("/ontology/pending", cfg.OntologyHandler.ListPending)
			api.GET("/ontology/deprecated", cfg.OntologyHandler.ListDeprecated)
			api.POST("/ontology/entries/:id/validate", cfg.OntologyHandler.Validate)
			api.POST("/ontology/deprecate", cfg.OntologyHandler.Deprecate)
			api.POST("/ontology/rollback", cfg.OntologyHandler.Rollback)
		}

		// Dispatcher observability
		if cfg.DispatchHandler != nil {
			api.GET("/dispatch/stats", cfg.DispatchHandler.Stats)
		}
	}

	return r
}
