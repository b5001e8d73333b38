package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/khoahotran/prospect-sync/internal/application/service"
	"github.com/khoahotran/prospect-sync/internal/domain/prospect"
	"github.com/khoahotran/prospect-sync/pkg/auth"
	"github.com/khoahotran/prospect-sync/pkg/logger"
	"github.com/khoahotran/prospect-sync/pkg/metrics"
)

type Handlers struct {
	Webhook  *WebhookHandler
	Sync     *SyncHandler
	Prospect *ProspectHandler
	Queue    *QueueHandler
}

func NewRouter(h Handlers, jwtSvc *auth.JWTService, rec *metrics.Recorder, log logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(RecoveryMiddleware(log), RequestLogger(log), ErrorMiddleware(log))

	if rec != nil {
		router.GET("/metrics", gin.WrapH(rec.Handler()))
	}

	api := router.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "UP", "timestamp": time.Now().UTC().Format(time.RFC3339)})
		})
		api.POST("/webhook/duxsoup", h.Webhook.Receive)

		admin := api.Group("/admin")
		admin.Use(AuthMiddleware(jwtSvc))
		{
			admin.POST("/sync/visits", h.Sync.Run(prospect.KindVisit))
			admin.POST("/sync/scans", h.Sync.Run(prospect.KindScan))

			admin.GET("/visits", h.Prospect.List(prospect.KindVisit))
			admin.GET("/visits/:id", h.Prospect.Get(prospect.KindVisit))
			admin.GET("/scans", h.Prospect.List(prospect.KindScan))
			admin.GET("/scans/:id", h.Prospect.Get(prospect.KindScan))

			queue := admin.Group("/queue")
			{
				queue.GET("/status", h.Queue.Status)
				queue.GET("/items", h.Queue.Items)
				queue.POST("/clear", h.Queue.Clear)
				queue.POST("/visit", h.Queue.Enqueue(service.CommandVisit))
				queue.POST("/connect", h.Queue.Enqueue(service.CommandConnect))
				queue.POST("/message", h.Queue.Enqueue(service.CommandMessage))
				queue.POST("/batch", h.Queue.Batch)
				queue.POST("/all", h.Queue.All)
			}
		}
	}

	return router
}
