package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/drug-budget-ledger/internal/domain"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID uuid.UUID
	Email  string
	Role   domain.Role
}

// Actor is the identity recorded on audit rows.
func (p Principal) Actor() string {
	return fmt.Sprintf("%s:%s", p.Role, p.UserID)
}

type principalKey struct{}

func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	p, ok := PrincipalFromContext(ctx)
	return p.UserID, ok
}
