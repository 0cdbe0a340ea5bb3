package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/drug-budget-ledger/internal/auth"
	"github.com/josh-kwaku/drug-budget-ledger/internal/domain"
)

const testJWTSecret = "test-jwt-secret"

type mockUsers struct {
	user *domain.User
}

func (m *mockUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	if m.user == nil || !strings.EqualFold(m.user.Email, email) {
		return nil, domain.ErrNotFound
	}
	return m.user, nil
}

func (m *mockUsers) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	if m.user == nil || m.user.ID != id {
		return nil, domain.ErrNotFound
	}
	return m.user, nil
}

func seededUser(t *testing.T, status domain.UserStatus) *domain.User {
	t.Helper()
	hash, err := auth.HashPassword("password123", 4)
	require.NoError(t, err)
	return &domain.User{
		ID:           uuid.New(),
		Email:        "approver@test.com",
		Name:         "Approver",
		PasswordHash: hash,
		Role:         domain.RoleApprover,
		Status:       status,
	}
}

func TestLogin(t *testing.T) {
	active := seededUser(t, domain.UserStatusActive)

	tests := []struct {
		name       string
		user       *domain.User
		body       string
		wantStatus int
	}{
		{name: "success", user: active, body: `{"email":"approver@test.com","password":"password123"}`, wantStatus: http.StatusOK},
		{name: "wrong password", user: active, body: `{"email":"approver@test.com","password":"nope"}`, wantStatus: http.StatusUnauthorized},
		{name: "unknown email", user: active, body: `{"email":"ghost@test.com","password":"password123"}`, wantStatus: http.StatusUnauthorized},
		{name: "suspended", user: seededUser(t, domain.UserStatusSuspended), body: `{"email":"approver@test.com","password":"password123"}`, wantStatus: http.StatusUnauthorized},
		{name: "missing fields", user: active, body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "malformed", user: active, body: `{`, wantStatus: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewAuthHandler(&mockUsers{user: tc.user}, testJWTSecret, time.Hour)
			rec := httptest.NewRecorder()
			h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(tc.body)))

			assert.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantStatus != http.StatusOK {
				return
			}

			_, data := decodeEnvelope(t, rec)
			token, _ := data["token"].(string)
			p, err := auth.ValidateToken(token, testJWTSecret)
			require.NoError(t, err)
			assert.Equal(t, active.ID, p.UserID)
			assert.Equal(t, domain.RoleApprover, p.Role)
		})
	}
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

func TestReadiness(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(fakePinger{}).Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	NewHealthHandler(fakePinger{err: assert.AnError}).Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMe(t *testing.T) {
	active := seededUser(t, domain.UserStatusActive)
	active.ID = testPrincipal.UserID
	suspended := seededUser(t, domain.UserStatusSuspended)
	suspended.ID = testPrincipal.UserID

	tests := []struct {
		name       string
		user       *domain.User
		wantStatus int
	}{
		{"active", active, http.StatusOK},
		{"suspended after token issued", suspended, http.StatusForbidden},
		{"deleted user", nil, http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewUserHandler(&mockUsers{user: tc.user})
			rec := httptest.NewRecorder()
			h.Me(rec, authedRequest(http.MethodGet, "/api/v1/me", ""))

			assert.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantStatus == http.StatusOK {
				_, data := decodeEnvelope(t, rec)
				assert.Equal(t, "approver@test.com", data["email"])
			}
		})
	}
}
