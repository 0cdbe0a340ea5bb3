package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/josh-kwaku/drug-budget-ledger/internal/domain"
	"github.com/josh-kwaku/drug-budget-ledger/internal/logging"
)

type userGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type UserHandler struct {
	users userGetter
}

func NewUserHandler(users userGetter) *UserHandler {
	return &UserHandler{users: users}
}

// Me returns the operator behind the bearer token. A token outliving a
// suspension is rejected here as well as at login.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrRespond(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetByID(r.Context(), p.UserID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to get user", "error", err)
		RespondDomainError(w, err)
		return
	}
	if user.Status != domain.UserStatusActive {
		RespondAppError(w, ErrForbidden, nil)
		return
	}

	RespondSuccess(w, http.StatusOK, userDTO{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Role:  string(user.Role),
	})
}
