package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/examforge/papergen-service/internal/services"
	"github.com/examforge/papergen-service/internal/utils"
)

type PaperHandler struct {
	*BaseHandler
	generation services.GenerationService
	export     services.ExportService
}

func NewPaperHandler(generation services.GenerationService, export services.ExportService, logger utils.Logger) *PaperHandler {
	return &PaperHandler{
		BaseHandler: NewBaseHandler(logger),
		generation:  generation,
		export:      export,
	}
}

// Generate handles POST /api/v1/papers
func (h *PaperHandler) Generate(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req services.GeneratePaperRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	resp, err := h.generation.Generate(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Get handles GET /api/v1/papers/:id
func (h *PaperHandler) Get(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	resp, err := h.generation.GetRequest(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Variants handles GET /api/v1/papers/:id/variants
func (h *PaperHandler) Variants(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	variants, err := h.generation.GetVariants(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"variants": variants, "total": len(variants)})
}

// Export handles GET /api/v1/papers/:id/export
func (h *PaperHandler) Export(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	data, err := h.export.ExportGradingResults(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	filename := fmt.Sprintf("grading-results-%d.xlsx", id)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
