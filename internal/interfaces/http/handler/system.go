package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/ledgerflow/numbering/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// Pinger checks the health of a backing dependency
type Pinger interface {
	Ping(ctx context.Context) error
}

// BreakerReporter exposes circuit breaker states by dependency name
type BreakerReporter interface {
	BreakerStates() map[string]string
}

// SystemHandler serves liveness and readiness endpoints
type SystemHandler struct {
	BaseHandler
	db       Pinger
	redis    Pinger
	breakers BreakerReporter
}

// NewSystemHandler creates a system handler
func NewSystemHandler(db, redis Pinger, breakers BreakerReporter) *SystemHandler {
	return &SystemHandler{
		db:       db,
		redis:    redis,
		breakers: breakers,
	}
}

// RegisterRoutes registers system routes on the given group
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", h.Health)
	rg.GET("/ready", h.Ready)
}

// Health reports process liveness
func (h *SystemHandler) Health(c *gin.Context) {
	h.Success(c, gin.H{"status": "ok"})
}

// Ready reports readiness of the backing dependencies. A degraded fallback
// path (Redis down, database up) still reports ready: the allocator keeps
// serving through its remaining strategies.
func (h *SystemHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	components := map[string]string{
		"database": "ok",
		"redis":    "ok",
	}
	status := "ok"

	if err := h.db.Ping(ctx); err != nil {
		components["database"] = err.Error()
		status = "degraded"
	}
	if err := h.redis.Ping(ctx); err != nil {
		components["redis"] = err.Error()
		status = "degraded"
	}

	resp := dto.HealthResponse{
		Status:     status,
		Components: components,
	}
	if h.breakers != nil {
		resp.Breakers = h.breakers.BreakerStates()
	}

	// only a fully dead database makes the service unready
	if components["database"] != "ok" {
		c.JSON(http.StatusServiceUnavailable, dto.Response{Success: false, Data: resp})
		return
	}
	h.Success(c, resp)
}
