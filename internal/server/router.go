package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/scoutline/scoutline-backend/internal/handlers"
)

type RouterConfig struct {
	ResearchHandler *handlers.ResearchHandler
	CORSOrigins     []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware("scoutline"))

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	router.POST("/research", cfg.ResearchHandler.Submit)
	router.GET("/research/:job_id", cfg.ResearchHandler.Get)
	router.GET("/research/:job_id/pending", cfg.ResearchHandler.Pending)
	router.POST("/research/:job_id/approve", cfg.ResearchHandler.Approve)
	router.GET("/research/:job_id/stream", cfg.ResearchHandler.Stream)

	return router
}
