package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/examforge/papergen-service/internal/services"
	"github.com/examforge/papergen-service/internal/utils"
)

type SubmissionHandler struct {
	*BaseHandler
	grading        services.GradingService
	maxUploadBytes int64
}

func NewSubmissionHandler(grading services.GradingService, maxUploadBytes int64, logger utils.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		BaseHandler:    NewBaseHandler(logger),
		grading:        grading,
		maxUploadBytes: maxUploadBytes,
	}
}

// Submit handles POST /api/v1/submissions (multipart form: variant_id,
// student_id + "file" part). Grading runs synchronously.
func (h *SubmissionHandler) Submit(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	variantID, err := strconv.ParseUint(c.PostForm("variant_id"), 10, 32)
	if err != nil || variantID == 0 {
		h.badRequest(c, "variant_id must be a positive integer")
		return
	}
	req := &services.SubmitPaperRequest{
		VariantID: uint(variantID),
		StudentID: c.PostForm("student_id"),
	}

	file, ok := h.readUpload(c, h.maxUploadBytes)
	if !ok {
		return
	}

	resp, err := h.grading.SubmitAndGrade(c.Request.Context(), req, file, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Get handles GET /api/v1/submissions/:id
func (h *SubmissionHandler) Get(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	resp, err := h.grading.GetSubmission(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Result handles GET /api/v1/submissions/:id/result
func (h *SubmissionHandler) Result(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	resp, err := h.grading.GetResult(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
