package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/josh-kwaku/drug-budget-ledger/internal/domain"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type FieldError = domain.FieldError

type insufficientBudgetDetails struct {
	RequiredBudget  int64 `json:"required_budget"`
	AvailableBudget int64 `json:"available_budget"`
	RequiredQty     int64 `json:"required_qty"`
	AvailableQty    int64 `json:"available_qty"`
}

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Error:   nil,
	})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	if appErr == ErrRetryLater {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	RespondJSON(w, appErr.Status, APIResponse{
		Success: false,
		Data:    nil,
		Error: &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		},
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

func RespondDomainError(w http.ResponseWriter, err error) {
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		RespondValidationError(w, validation.Fields)
		return
	}

	var insufficient *domain.InsufficientBudgetError
	if errors.As(err, &insufficient) {
		RespondAppError(w, ErrInsufficientBudget, insufficientBudgetDetails{
			RequiredBudget:  insufficient.RequiredBudget,
			AvailableBudget: insufficient.AvailableBudget,
			RequiredQty:     insufficient.RequiredQty,
			AvailableQty:    insufficient.AvailableQty,
		})
		return
	}

	var appErr *AppError

	switch {
	case errors.Is(err, domain.ErrRetryLater):
		appErr = ErrRetryLater
	case errors.Is(err, domain.ErrAccountNotFound):
		appErr = ErrAccountNotFound
	case errors.Is(err, domain.ErrNotFound):
		appErr = ErrResourceNotFound
	case errors.Is(err, domain.ErrAccountLocked):
		appErr = ErrAccountLocked
	case errors.Is(err, domain.ErrInvalidTransition):
		appErr = ErrInvalidTransition
	case errors.Is(err, domain.ErrRequestNotEditable):
		appErr = ErrRequestNotEditable
	case errors.Is(err, domain.ErrVersionConflict):
		appErr = ErrVersionConflict
	case errors.Is(err, domain.ErrForbidden):
		appErr = ErrForbidden
	case errors.Is(err, domain.ErrInvalidCredentials):
		appErr = ErrInvalidCredentials
	case errors.Is(err, domain.ErrInvariantViolation):
		slog.Error("ledger invariant violated", "error", err)
		appErr = ErrInvariantViolation
	default:
		slog.Error("unhandled domain error", "error", err)
		appErr = ErrInternalError
	}

	RespondAppError(w, appErr, nil)
}

// decodeJSON reads a request body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
