package dto

import "time"

// AllocateRequest asks for a block of identifiers
type AllocateRequest struct {
	Count  int    `json:"count" binding:"required,min=1"`
	Series string `json:"series" binding:"omitempty,alphanum,uppercase,max=10"`
}

// AllocateResponse returns the reserved identifiers
type AllocateResponse struct {
	Identifiers []string  `json:"identifiers"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ConfirmRequest finalizes previously allocated identifiers
type ConfirmRequest struct {
	Identifiers []string `json:"identifiers" binding:"required,min=1,dive,required"`
}

// ReleaseRequest returns previously allocated identifiers to the pool
type ReleaseRequest struct {
	Identifiers []string `json:"identifiers" binding:"required,min=1,dive,required"`
}

// HealthResponse reports component health for readiness probes
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	Breakers   map[string]string `json:"breakers"`
}
