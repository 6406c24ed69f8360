package handlers

import (
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/examforge/papergen-service/internal/services"
	"github.com/examforge/papergen-service/internal/utils"
)

// BaseHandler provides common functionality shared by all handlers
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) *BaseHandler {
	return &BaseHandler{logger: logger}
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func statusForCode(code string) int {
	switch code {
	case services.CodeQuotaExhausted, services.CodePermissionDenied:
		return http.StatusForbidden
	case services.CodeNotFound:
		return http.StatusNotFound
	case services.CodeValidationFailed, services.CodeUnsupportedFile:
		return http.StatusBadRequest
	case services.CodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case services.CodeNoExtractableText, services.CodeModelRejected:
		return http.StatusUnprocessableEntity
	case services.CodeUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleServiceError maps service error codes onto HTTP statuses. Upstream
// failure detail never reaches the client.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	log := utils.LoggerFromContext(c.Request.Context(), h.logger)

	se, ok := services.AsServiceError(err)
	if !ok {
		log.Error("Unhandled service error", "error", err, "path", c.Request.URL.Path)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: errorBody{
			Code:    "internal_error",
			Message: "an unexpected error occurred",
		}})
		return
	}

	status := statusForCode(se.Code)
	body := errorBody{Code: se.Code, Message: se.Message}
	if se.Code == services.CodeUpstreamUnavailable {
		log.Error("Upstream dependency failed", "error", se.Err, "path", c.Request.URL.Path)
	} else if status >= 500 {
		log.Error("Service error", "error", err, "path", c.Request.URL.Path)
	}

	c.JSON(status, errorResponse{Error: body})
}

func (h *BaseHandler) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: errorBody{
		Code:    services.CodeValidationFailed,
		Message: message,
	}})
}

// userID returns the authenticated caller set by the identity middleware.
func (h *BaseHandler) userID(c *gin.Context) (string, bool) {
	id := c.GetString("user_id")
	if id == "" {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: errorBody{
			Code:    "unauthorized",
			Message: "missing X-User-ID header",
		}})
		return "", false
	}
	return id, true
}

// readUpload pulls the "file" part of a multipart request, bounded by the
// service-wide upload limit. Plan-level limits apply later in the services.
func (h *BaseHandler) readUpload(c *gin.Context, maxBytes int64) (*services.UploadedFile, bool) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.badRequest(c, "file part is required")
		return nil, false
	}
	if maxBytes > 0 && fileHeader.Size > maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: errorBody{
			Code:    services.CodeFileTooLarge,
			Message: "uploaded file exceeds the service limit",
		}})
		return nil, false
	}

	data, ok := h.readAll(c, fileHeader)
	if !ok {
		return nil, false
	}
	return &services.UploadedFile{Filename: fileHeader.Filename, Data: data}, true
}

func (h *BaseHandler) readAll(c *gin.Context, fh *multipart.FileHeader) ([]byte, bool) {
	f, err := fh.Open()
	if err != nil {
		h.badRequest(c, "could not read uploaded file")
		return nil, false
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		h.badRequest(c, "could not read uploaded file")
		return nil, false
	}
	return data, true
}
