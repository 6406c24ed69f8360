package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/examforge/papergen-service/internal/models"
	"github.com/examforge/papergen-service/internal/repositories"
	"github.com/examforge/papergen-service/internal/services"
	"github.com/examforge/papergen-service/internal/utils"
)

type MaterialHandler struct {
	*BaseHandler
	materials      services.MaterialService
	maxUploadBytes int64
}

func NewMaterialHandler(materials services.MaterialService, maxUploadBytes int64, logger utils.Logger) *MaterialHandler {
	return &MaterialHandler{
		BaseHandler:    NewBaseHandler(logger),
		materials:      materials,
		maxUploadBytes: maxUploadBytes,
	}
}

// Upload handles POST /api/v1/materials (multipart form: metadata fields +
// "file" part)
func (h *MaterialHandler) Upload(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	req, ok := h.parseMetadata(c)
	if !ok {
		return
	}
	file, ok := h.readUpload(c, h.maxUploadBytes)
	if !ok {
		return
	}

	resp, err := h.materials.Upload(c.Request.Context(), req, file, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *MaterialHandler) parseMetadata(c *gin.Context) (*services.CreateMaterialRequest, bool) {
	courseID, err := strconv.ParseUint(c.PostForm("course_id"), 10, 32)
	if err != nil {
		h.badRequest(c, "course_id must be a positive integer")
		return nil, false
	}

	req := &services.CreateMaterialRequest{
		CourseID: uint(courseID),
		Title:    c.PostForm("title"),
		Type:     models.MaterialType(c.PostForm("type")),
	}
	if v := c.PostForm("description"); v != "" {
		req.Description = &v
	}
	if v := c.PostForm("style_notes"); v != "" {
		req.StyleNotes = &v
	}
	if v := c.PostForm("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			h.badRequest(c, "year must be an integer")
			return nil, false
		}
		req.Year = &year
	}
	if v := c.PostForm("weightings"); v != "" {
		if err := json.Unmarshal([]byte(v), &req.Weightings); err != nil {
			h.badRequest(c, "weightings must be a JSON object of topic to weight")
			return nil, false
		}
	}
	return req, true
}

// Get handles GET /api/v1/materials/:id
func (h *MaterialHandler) Get(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	resp, err := h.materials.GetByID(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Update handles PUT /api/v1/materials/:id
func (h *MaterialHandler) Update(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req services.UpdateMaterialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	resp, err := h.materials.Update(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Delete handles DELETE /api/v1/materials/:id
func (h *MaterialHandler) Delete(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	if err := h.materials.Delete(c.Request.Context(), id, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListByCourse handles GET /api/v1/courses/:id/materials
func (h *MaterialHandler) ListByCourse(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	courseID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	filters := repositories.MaterialFilters{
		Limit:     queryInt(c, "limit", 50),
		Offset:    queryInt(c, "offset", 0),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if v := c.Query("type"); v != "" {
		mt := models.MaterialType(v)
		filters.Type = &mt
	}
	if v := c.Query("year"); v != "" {
		if year, err := strconv.Atoi(v); err == nil {
			filters.Year = &year
		}
	}

	resp, err := h.materials.ListByCourse(c.Request.Context(), courseID, filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Reconcile handles POST /api/v1/courses/:id/materials/reconcile
func (h *MaterialHandler) Reconcile(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	courseID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	resp, err := h.materials.Reconcile(c.Request.Context(), courseID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BaseHandler) pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		h.badRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, name string, fallback int) int {
	if v := c.Query(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
