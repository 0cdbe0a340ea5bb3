package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken       = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken       = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidCredentials = &AppError{http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password"}
	ErrForbidden          = &AppError{http.StatusForbidden, "FORBIDDEN", "Your role may not perform this action"}
	ErrInvalidRequest     = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed   = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound   = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError      = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInsufficientBudget = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_BUDGET", "Insufficient budget"}
	ErrAccountLocked      = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_LOCKED", "Ledger account is locked"}
	ErrAccountNotFound    = &AppError{http.StatusNotFound, "ACCOUNT_NOT_FOUND", "Ledger account not found"}
	ErrRetryLater         = &AppError{http.StatusServiceUnavailable, "RETRY_LATER", "Ledger account is busy, retry shortly"}
	ErrInvalidTransition  = &AppError{http.StatusConflict, "INVALID_TRANSITION", "Request status does not allow this action"}
	ErrRequestNotEditable = &AppError{http.StatusConflict, "REQUEST_NOT_EDITABLE", "Budget request can no longer be edited"}
	ErrVersionConflict    = &AppError{http.StatusConflict, "VERSION_CONFLICT", "Resource was modified concurrently, please retry"}
	ErrInvariantViolation = &AppError{http.StatusInternalServerError, "INVARIANT_VIOLATION", "Ledger balance check failed"}

	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
	ErrIdempotencyInFlight   = &AppError{http.StatusConflict, "IDEMPOTENCY_IN_FLIGHT", "A request with this idempotency key is still running"}
)

// retryAfterSeconds is sent with RETRY_LATER responses.
const retryAfterSeconds = "1"
