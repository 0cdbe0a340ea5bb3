package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/drug-budget-ledger/internal/domain"
	"github.com/josh-kwaku/drug-budget-ledger/internal/service/approval"
	"github.com/josh-kwaku/drug-budget-ledger/internal/service/planning"
)

type mockPlanning struct {
	draftReq  planning.DraftRequest
	growthReq planning.GrowthRequest
	draft     *planning.Draft
	growth    *planning.GrowthResult
	err       error
}

func (m *mockPlanning) GenerateDraft(_ context.Context, req planning.DraftRequest) (*planning.Draft, error) {
	m.draftReq = req
	return m.draft, m.err
}

func (m *mockPlanning) GetRequest(_ context.Context, _ uuid.UUID) (*planning.Draft, error) {
	return m.draft, m.err
}

func (m *mockPlanning) UpdateItem(_ context.Context, _, _ uuid.UUID, _ planning.ItemUpdate) (*domain.BudgetRequestItem, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &m.draft.Items[0], nil
}

func (m *mockPlanning) ApplyGrowth(_ context.Context, _ uuid.UUID, req planning.GrowthRequest) (*planning.GrowthResult, error) {
	m.growthReq = req
	return m.growth, m.err
}

type mockApproval struct {
	result *approval.ApprovalResult
	reason string
	err    error
}

func (m *mockApproval) Submit(_ context.Context, _ uuid.UUID, _ string) (*domain.BudgetRequest, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.result.Request, nil
}

func (m *mockApproval) Approve(_ context.Context, _ uuid.UUID, _ string) (*approval.ApprovalResult, error) {
	return m.result, m.err
}

func (m *mockApproval) Reject(_ context.Context, _ uuid.UUID, _, reason string) (*domain.BudgetRequest, error) {
	m.reason = reason
	if m.err != nil {
		return nil, m.err
	}
	return m.result.Request, nil
}

func sampleDraft() *planning.Draft {
	now := time.Now().UTC()
	return &planning.Draft{
		Request: &domain.BudgetRequest{ID: uuid.New(), FiscalYear: 2025, Status: domain.RequestStatusDraft, CreatedAt: now, UpdatedAt: now},
		Items:   []domain.BudgetRequestItem{{ID: uuid.New(), LineItemID: "AMOX", EstimatedUsage: 200, UnitPrice: 50}},
	}
}

func budgetMux(h *BudgetHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/budget-requests/drafts", h.GenerateDraft)
	mux.HandleFunc("GET /api/v1/budget-requests/{id}", h.Get)
	mux.HandleFunc("PATCH /api/v1/budget-requests/{id}/items/{itemID}", h.UpdateItem)
	mux.HandleFunc("POST /api/v1/budget-requests/{id}/growth", h.ApplyGrowth)
	mux.HandleFunc("POST /api/v1/budget-requests/{id}/approve", h.Approve)
	mux.HandleFunc("POST /api/v1/budget-requests/{id}/reject", h.Reject)
	return mux
}

func TestGenerateDraft(t *testing.T) {
	svc := &mockPlanning{draft: sampleDraft()}
	mux := budgetMux(NewBudgetHandler(svc, &mockApproval{}))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/budget-requests/drafts", `{"fiscal_year":2025,"drug_type":"antibiotic"}`))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 2025, svc.draftReq.FiscalYear)
	assert.Equal(t, "antibiotic", svc.draftReq.DrugType)
	assert.Nil(t, svc.draftReq.RequestID)
	assert.Equal(t, testPrincipal.Actor(), svc.draftReq.Actor)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/budget-requests/drafts", `{"fiscal_year":2025,"request_id":"nope"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplyGrowth_Handler(t *testing.T) {
	svc := &mockPlanning{growth: &planning.GrowthResult{Updated: 2}}
	mux := budgetMux(NewBudgetHandler(svc, &mockApproval{}))
	id := uuid.New()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/budget-requests/"+id.String()+"/growth",
		`{"percent":"12.5","drug_type":"antibiotic","target":"both"}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "12.5", svc.growthReq.Percent.String())
	assert.Equal(t, planning.GrowthTargetBoth, svc.growthReq.Target)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/budget-requests/"+id.String()+"/growth", `{"drug_type":"x"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "percent is required")

	svc.err = domain.ErrRequestNotEditable
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/budget-requests/"+id.String()+"/growth", `{"percent":5}`))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestApprove_Handler(t *testing.T) {
	draft := sampleDraft()
	draft.Request.Status = domain.RequestStatusApproved
	svc := &mockApproval{result: &approval.ApprovalResult{Request: draft.Request, AlreadyApproved: true}}
	mux := budgetMux(NewBudgetHandler(&mockPlanning{}, svc))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/budget-requests/"+draft.Request.ID.String()+"/approve", ""))

	assert.Equal(t, http.StatusOK, rec.Code)
	_, data := decodeEnvelope(t, rec)
	assert.Equal(t, true, data["already_approved"])

	svc.err = domain.ErrInvalidTransition
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/budget-requests/"+draft.Request.ID.String()+"/approve", ""))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/budget-requests/not-a-uuid/approve", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReject_Handler(t *testing.T) {
	draft := sampleDraft()
	svc := &mockApproval{result: &approval.ApprovalResult{Request: draft.Request}}
	mux := budgetMux(NewBudgetHandler(&mockPlanning{}, svc))
	path := "/api/v1/budget-requests/" + draft.Request.ID.String() + "/reject"

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodPost, path, `{"reason":""}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodPost, path, `{"reason":"over plan"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "over plan", svc.reason)
}

func TestGetRequest_NotFound(t *testing.T) {
	mux := budgetMux(NewBudgetHandler(&mockPlanning{err: domain.ErrNotFound}, &mockApproval{}))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/budget-requests/"+uuid.NewString(), ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
