package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/drug-budget-ledger/internal/domain"
	"github.com/josh-kwaku/drug-budget-ledger/internal/service/approval"
	"github.com/josh-kwaku/drug-budget-ledger/internal/service/planning"
)

type planningService interface {
	GenerateDraft(ctx context.Context, req planning.DraftRequest) (*planning.Draft, error)
	GetRequest(ctx context.Context, id uuid.UUID) (*planning.Draft, error)
	UpdateItem(ctx context.Context, requestID, itemID uuid.UUID, upd planning.ItemUpdate) (*domain.BudgetRequestItem, error)
	ApplyGrowth(ctx context.Context, requestID uuid.UUID, req planning.GrowthRequest) (*planning.GrowthResult, error)
}

type approvalService interface {
	Submit(ctx context.Context, id uuid.UUID, actor string) (*domain.BudgetRequest, error)
	Approve(ctx context.Context, id uuid.UUID, actor string) (*approval.ApprovalResult, error)
	Reject(ctx context.Context, id uuid.UUID, actor, reason string) (*domain.BudgetRequest, error)
}

type BudgetHandler struct {
	planning planningService
	approval approvalService
}

func NewBudgetHandler(planning planningService, approval approvalService) *BudgetHandler {
	return &BudgetHandler{planning: planning, approval: approval}
}

type draftResponse struct {
	Request budgetRequestDTO `json:"request"`
	Items   []budgetItemDTO  `json:"items"`
}

func toDraftResponse(d *planning.Draft) draftResponse {
	return draftResponse{Request: toBudgetRequestDTO(d.Request), Items: toBudgetItemDTOs(d.Items)}
}

type generateDraftRequest struct {
	FiscalYear int     `json:"fiscal_year"`
	DrugType   string  `json:"drug_type"`
	RequestID  *string `json:"request_id"`
}

func (r generateDraftRequest) Validate() []FieldError {
	var errs []FieldError
	if r.FiscalYear == 0 {
		errs = append(errs, FieldError{Field: "fiscal_year", Message: "required"})
	}
	if r.RequestID != nil {
		if _, err := uuid.Parse(*r.RequestID); err != nil {
			errs = append(errs, FieldError{Field: "request_id", Message: "must be a valid UUID"})
		}
	}
	return errs
}

func (h *BudgetHandler) GenerateDraft(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrRespond(w, r)
	if !ok {
		return
	}

	var req generateDraftRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	in := planning.DraftRequest{FiscalYear: req.FiscalYear, DrugType: req.DrugType, Actor: p.Actor()}
	status := http.StatusCreated
	if req.RequestID != nil {
		id := uuid.MustParse(*req.RequestID)
		in.RequestID = &id
		status = http.StatusOK
	}

	draft, err := h.planning.GenerateDraft(r.Context(), in)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, status, toDraftResponse(draft))
}

func (h *BudgetHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	draft, err := h.planning.GetRequest(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toDraftResponse(draft))
}

type updateItemRequest struct {
	EstimatedUsage *int64 `json:"estimated_usage"`
	CurrentStock   *int64 `json:"current_stock"`
	UnitPrice      *int64 `json:"unit_price"`
}

func (h *BudgetHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := pathUUID(w, r, "itemID")
	if !ok {
		return
	}

	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	item, err := h.planning.UpdateItem(r.Context(), requestID, itemID, planning.ItemUpdate{
		EstimatedUsage: req.EstimatedUsage,
		CurrentStock:   req.CurrentStock,
		UnitPrice:      req.UnitPrice,
	})
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toBudgetItemDTO(item))
}

type growthRequest struct {
	Percent  *decimal.Decimal `json:"percent"`
	DrugType string           `json:"drug_type"`
	ItemIDs  []string         `json:"item_ids"`
	Target   string           `json:"target"`
}

func (r growthRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Percent == nil {
		errs = append(errs, FieldError{Field: "percent", Message: "required"})
	}
	for _, id := range r.ItemIDs {
		if _, err := uuid.Parse(id); err != nil {
			errs = append(errs, FieldError{Field: "item_ids", Message: "must contain valid UUIDs"})
			break
		}
	}
	return errs
}

type growthResponse struct {
	Updated int             `json:"updated"`
	Items   []budgetItemDTO `json:"items"`
}

func (h *BudgetHandler) ApplyGrowth(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrRespond(w, r)
	if !ok {
		return
	}
	requestID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req growthRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	ids := make([]uuid.UUID, len(req.ItemIDs))
	for i, s := range req.ItemIDs {
		ids[i] = uuid.MustParse(s)
	}

	res, err := h.planning.ApplyGrowth(r.Context(), requestID, planning.GrowthRequest{
		Percent:  *req.Percent,
		DrugType: req.DrugType,
		ItemIDs:  ids,
		Target:   planning.GrowthTarget(req.Target),
		Actor:    p.Actor(),
	})
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, growthResponse{Updated: res.Updated, Items: toBudgetItemDTOs(res.Items)})
}

func (h *BudgetHandler) Submit(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrRespond(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	br, err := h.approval.Submit(r.Context(), id, p.Actor())
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toBudgetRequestDTO(br))
}

type approveResponse struct {
	Request         budgetRequestDTO `json:"request"`
	AlreadyApproved bool             `json:"already_approved"`
	Accounts        []accountDTO     `json:"accounts"`
}

func (h *BudgetHandler) Approve(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrRespond(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	res, err := h.approval.Approve(r.Context(), id, p.Actor())
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, approveResponse{
		Request:         toBudgetRequestDTO(res.Request),
		AlreadyApproved: res.AlreadyApproved,
		Accounts:        toAccountDTOs(res.Accounts),
	})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *BudgetHandler) Reject(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrRespond(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req rejectRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		RespondValidationError(w, []FieldError{{Field: "reason", Message: "required"}})
		return
	}

	br, err := h.approval.Reject(r.Context(), id, p.Actor(), req.Reason)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toBudgetRequestDTO(br))
}
