package http

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-qc/internal/application/service"
	"github.com/garyjia/invoice-qc/internal/normalize"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	validation   service.ValidationService
	health       HealthReporter
	maxBodyBytes int64
	logger       *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	validation service.ValidationService,
	health HealthReporter,
	maxBodyBytes int64,
	logger *zap.Logger,
) *Handlers {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultServerConfig().MaxBodyBytes
	}
	return &Handlers{
		validation:   validation,
		health:       health,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Persistent bool        `json:"persistent_history"`
	Components interface{} `json:"components,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:     "healthy",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Persistent: h.validation.Persistent(),
	}
	status := http.StatusOK

	if h.health != nil {
		report := h.health.Health(c.Request.Context())
		response.Components = report.Components
		if !report.Overall {
			response.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, Response{
		Success: status == http.StatusOK,
		Data:    response,
	})
}

// Validate handles POST /api/v1/validate
func (h *Handlers) Validate(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}

	rec, err := normalize.DecodeRecord(body)
	if err != nil {
		h.badInput(c, err)
		return
	}

	verdict, err := h.validation.ValidateOne(c.Request.Context(), &rec)
	if err != nil {
		h.logger.Error("Validation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "validation failed",
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    verdict,
	})
}

// ValidateBatch handles POST /api/v1/validate/batch
func (h *Handlers) ValidateBatch(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}

	records, err := normalize.DecodeBatch(bytes.NewReader(body))
	if err != nil {
		h.badInput(c, err)
		return
	}

	report, err := h.validation.ValidateBatch(c.Request.Context(), records)
	if err != nil {
		h.logger.Error("Batch validation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "batch validation failed",
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    report,
	})
}

// readBody reads the request body within the size limit and writes the
// error response itself when it cannot.
func (h *Handlers) readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err == nil {
		return body, true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, Response{
			Success: false,
			Error:   "request body too large",
		})
		return nil, false
	}

	h.logger.Error("Failed to read request body", zap.Error(err))
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   "failed to read request body",
	})
	return nil, false
}

func (h *Handlers) badInput(c *gin.Context, err error) {
	var decErr *normalize.InputDecodeError
	if !errors.As(err, &decErr) {
		h.logger.Error("Unexpected decode failure", zap.Error(err))
	}
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   err.Error(),
	})
}
