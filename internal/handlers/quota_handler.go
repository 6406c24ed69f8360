package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/examforge/papergen-service/internal/services"
	"github.com/examforge/papergen-service/internal/utils"
)

type QuotaHandler struct {
	*BaseHandler
	quota services.QuotaService
}

func NewQuotaHandler(quota services.QuotaService, logger utils.Logger) *QuotaHandler {
	return &QuotaHandler{
		BaseHandler: NewBaseHandler(logger),
		quota:       quota,
	}
}

// Get handles GET /api/v1/quota
func (h *QuotaHandler) Get(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	snapshot, err := h.quota.Remaining(c.Request.Context(), userID, time.Now().UTC())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
