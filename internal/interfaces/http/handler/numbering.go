package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/ledgerflow/numbering/internal/domain/shared"
	"github.com/ledgerflow/numbering/internal/infrastructure/logger"
	"github.com/ledgerflow/numbering/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HeaderIdempotencyKey lets clients retry POST /allocate safely: a repeated
// key is rejected instead of minting a second block.
const HeaderIdempotencyKey = "Idempotency-Key"

// AllocatorService is the application service behind the numbering endpoints
type AllocatorService interface {
	AllocateSeries(ctx context.Context, tenantID, series string, count int) ([]string, error)
	Confirm(ctx context.Context, identifiers []string, tenantID string) error
	Release(ctx context.Context, identifiers []string, tenantID string) error
	ReservationValidity() time.Duration
}

// NumberingHandler serves identifier allocation endpoints
type NumberingHandler struct {
	BaseHandler
	service      AllocatorService
	maxBatchSize int
	idempotency  shared.IdempotencyStore
	idemTTL      time.Duration
}

// NewNumberingHandler creates a numbering handler
func NewNumberingHandler(service AllocatorService, maxBatchSize int) *NumberingHandler {
	return &NumberingHandler{
		service:      service,
		maxBatchSize: maxBatchSize,
	}
}

// WithIdempotency enables duplicate-request detection on Allocate. Requests
// carrying an Idempotency-Key header that was already accepted within ttl
// are rejected with a conflict.
func (h *NumberingHandler) WithIdempotency(store shared.IdempotencyStore, ttl time.Duration) *NumberingHandler {
	h.idempotency = store
	h.idemTTL = ttl
	return h
}

// RegisterRoutes registers numbering routes on the given group
func (h *NumberingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	identifiers := rg.Group("/identifiers")
	{
		identifiers.POST("/allocate", h.Allocate)
		identifiers.POST("/confirm", h.Confirm)
		identifiers.POST("/release", h.Release)
	}
}

// Allocate reserves a block of identifiers for the calling tenant
func (h *NumberingHandler) Allocate(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "X-Tenant-ID header is required")
		return
	}

	var req dto.AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if req.Count > h.maxBatchSize {
		h.BadRequest(c, "count exceeds the maximum batch size")
		return
	}
	if !h.checkIdempotency(c, tenantID) {
		return
	}

	identifiers, err := h.service.AllocateSeries(c.Request.Context(), tenantID, req.Series, req.Count)
	if err != nil {
		logger.L(c.Request.Context()).Warn("allocation failed",
			zap.String("tenant_id", tenantID),
			zap.Int("count", req.Count),
			zap.Error(err))
		h.HandleError(c, err)
		return
	}

	h.Created(c, dto.AllocateResponse{
		Identifiers: identifiers,
		ExpiresAt:   time.Now().Add(h.service.ReservationValidity()),
	})
}

// Confirm finalizes previously allocated identifiers
func (h *NumberingHandler) Confirm(c *gin.Context) {
	var req dto.ConfirmRequest
	if !h.bindStatusRequest(c, &req) {
		return
	}
	h.updateStatus(c, req.Identifiers, h.service.Confirm)
}

// Release returns previously allocated identifiers to the pool
func (h *NumberingHandler) Release(c *gin.Context) {
	var req dto.ReleaseRequest
	if !h.bindStatusRequest(c, &req) {
		return
	}
	h.updateStatus(c, req.Identifiers, h.service.Release)
}

// checkIdempotency rejects a repeated Idempotency-Key. Requests without the
// header pass through, and a failing store fails open so that duplicate
// detection never takes allocation down with it.
func (h *NumberingHandler) checkIdempotency(c *gin.Context, tenantID string) bool {
	if h.idempotency == nil {
		return true
	}
	key := c.GetHeader(HeaderIdempotencyKey)
	if key == "" {
		return true
	}

	isNew, err := h.idempotency.MarkProcessed(c.Request.Context(), tenantID+":"+key, h.idemTTL)
	if err != nil {
		logger.L(c.Request.Context()).Warn("idempotency check failed, continuing",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return true
	}
	if !isNew {
		h.Error(c, http.StatusConflict, dto.ErrCodeConflict, "duplicate request: this idempotency key was already used")
		return false
	}
	return true
}

func (h *NumberingHandler) bindStatusRequest(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *NumberingHandler) updateStatus(c *gin.Context, identifiers []string, op func(context.Context, []string, string) error) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "X-Tenant-ID header is required")
		return
	}

	if err := op(c.Request.Context(), identifiers, tenantID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
