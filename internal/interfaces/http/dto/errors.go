package dto

import "net/http"

// Error code constants, format: ERR_<CATEGORY>_<DESCRIPTION>
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeValidation is used when request validation fails
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeConflict is used when a reservation collides with an existing one
	ErrCodeConflict = "ERR_CONFLICT"
	// ErrCodeInvalidState is used when an operation is invalid for the
	// reservation's current status
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeCollisionExhausted is used when allocation gave up after its
	// collision retry budget
	ErrCodeCollisionExhausted = "ERR_COLLISION_EXHAUSTED"
	// ErrCodeBackendsUnavailable is used when no identifier authority could
	// serve the request
	ErrCodeBackendsUnavailable = "ERR_BACKENDS_UNAVAILABLE"
	// ErrCodeCircuitOpen is used when a protected dependency's circuit
	// breaker rejects the call without attempting it
	ErrCodeCircuitOpen = "ERR_CIRCUIT_OPEN"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:             http.StatusInternalServerError,
	ErrCodeInternal:            http.StatusInternalServerError,
	ErrCodeBadRequest:          http.StatusBadRequest,
	ErrCodeValidation:          http.StatusBadRequest,
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeInvalidState:        http.StatusUnprocessableEntity,
	ErrCodeCollisionExhausted:  http.StatusConflict,
	ErrCodeBackendsUnavailable: http.StatusServiceUnavailable,
	ErrCodeCircuitOpen:         http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Returns 500 Internal Server Error if the error code is not found.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// domainErrorCodeMapping maps domain error codes to API error codes
var domainErrorCodeMapping = map[string]string{
	"NOT_FOUND":                ErrCodeNotFound,
	"INVALID_INPUT":            ErrCodeBadRequest,
	"INVALID_ARGUMENT":         ErrCodeBadRequest,
	"INVALID_STATE":            ErrCodeInvalidState,
	"DUPLICATE_IDENTIFIER":     ErrCodeConflict,
	"COLLISION_EXHAUSTED":      ErrCodeCollisionExhausted,
	"ALL_BACKENDS_UNAVAILABLE": ErrCodeBackendsUnavailable,
	"CIRCUIT_OPEN":             ErrCodeCircuitOpen,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Unknown codes are returned as-is.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := domainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
