package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/examforge/papergen-service/internal/services"
	"github.com/examforge/papergen-service/internal/utils"
)

// HandlerManager wires all handlers and owns route registration.
type HandlerManager struct {
	logger utils.Logger

	materials   *MaterialHandler
	papers      *PaperHandler
	submissions *SubmissionHandler
	quota       *QuotaHandler

	health func(c *gin.Context)
}

type HandlerConfig struct {
	MaxUploadBytes int64
}

func NewHandlerManager(sm services.ServiceManager, cfg HandlerConfig, healthCheck func(c *gin.Context), logger utils.Logger) *HandlerManager {
	return &HandlerManager{
		logger:      logger,
		materials:   NewMaterialHandler(sm.Material(), cfg.MaxUploadBytes, logger),
		papers:      NewPaperHandler(sm.Generation(), sm.Export(), logger),
		submissions: NewSubmissionHandler(sm.Grading(), cfg.MaxUploadBytes, logger),
		quota:       NewQuotaHandler(sm.Quota(), logger),
		health:      healthCheck,
	}
}

// SetupMiddleware installs the shared middleware chain.
func (hm *HandlerManager) SetupMiddleware(r *gin.Engine) {
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(CORSMiddleware())
	r.Use(SecurityMiddleware())
	r.Use(IdentityMiddleware())
	r.Use(utils.ContextLogger(hm.logger))
	r.Use(utils.LoggerMiddleware(hm.logger))
}

// SetupRoutes registers the HTTP surface.
func (hm *HandlerManager) SetupRoutes(r *gin.Engine) {
	r.GET("/health", hm.healthEndpoint)

	v1 := r.Group("/api/v1")
	{
		materials := v1.Group("/materials")
		{
			materials.POST("", hm.materials.Upload)
			materials.GET("/:id", hm.materials.Get)
			materials.PUT("/:id", hm.materials.Update)
			materials.DELETE("/:id", hm.materials.Delete)
		}

		courses := v1.Group("/courses")
		{
			courses.GET("/:id/materials", hm.materials.ListByCourse)
			courses.POST("/:id/materials/reconcile", hm.materials.Reconcile)
		}

		papers := v1.Group("/papers")
		{
			papers.POST("", hm.papers.Generate)
			papers.GET("/:id", hm.papers.Get)
			papers.GET("/:id/variants", hm.papers.Variants)
			papers.GET("/:id/export", hm.papers.Export)
		}

		submissions := v1.Group("/submissions")
		{
			submissions.POST("", hm.submissions.Submit)
			submissions.GET("/:id", hm.submissions.Get)
			submissions.GET("/:id/result", hm.submissions.Result)
		}

		v1.GET("/quota", hm.quota.Get)
	}
}

func (hm *HandlerManager) healthEndpoint(c *gin.Context) {
	if hm.health != nil {
		hm.health(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
