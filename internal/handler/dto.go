package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/drug-budget-ledger/internal/auth"
	"github.com/josh-kwaku/drug-budget-ledger/internal/domain"
)

type budgetRequestDTO struct {
	ID              uuid.UUID  `json:"id"`
	FiscalYear      int        `json:"fiscal_year"`
	Status          string     `json:"status"`
	CreatedBy       string     `json:"created_by"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	ApprovedBy      *string    `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	Version         int64      `json:"version"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toBudgetRequestDTO(br *domain.BudgetRequest) budgetRequestDTO {
	return budgetRequestDTO{
		ID:              br.ID,
		FiscalYear:      br.FiscalYear,
		Status:          string(br.Status),
		CreatedBy:       br.CreatedBy,
		SubmittedAt:     br.SubmittedAt,
		ApprovedBy:      br.ApprovedBy,
		ApprovedAt:      br.ApprovedAt,
		RejectionReason: br.RejectionReason,
		Version:         br.Version,
		CreatedAt:       br.CreatedAt,
		UpdatedAt:       br.UpdatedAt,
	}
}

type budgetItemDTO struct {
	ID                uuid.UUID `json:"id"`
	LineItemID        string    `json:"line_item_id"`
	DrugType          string    `json:"drug_type"`
	UsageYear1        int64     `json:"usage_year1"`
	UsageYear2        int64     `json:"usage_year2"`
	UsageYear3        int64     `json:"usage_year3"`
	EstimatedUsage    int64     `json:"estimated_usage"`
	CurrentStock      int64     `json:"current_stock"`
	UnitPrice         int64     `json:"unit_price"`
	EstimatedPurchase int64     `json:"estimated_purchase"`
	RequestedQty      int64     `json:"requested_qty"`
	RequestedAmount   int64     `json:"requested_amount"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func toBudgetItemDTO(i *domain.BudgetRequestItem) budgetItemDTO {
	return budgetItemDTO{
		ID:                i.ID,
		LineItemID:        i.LineItemID,
		DrugType:          i.DrugType,
		UsageYear1:        i.UsageYear1,
		UsageYear2:        i.UsageYear2,
		UsageYear3:        i.UsageYear3,
		EstimatedUsage:    i.EstimatedUsage,
		CurrentStock:      i.CurrentStock,
		UnitPrice:         i.UnitPrice,
		EstimatedPurchase: i.EstimatedPurchase,
		RequestedQty:      i.RequestedQty,
		RequestedAmount:   i.RequestedAmount,
		UpdatedAt:         i.UpdatedAt,
	}
}

func toBudgetItemDTOs(items []domain.BudgetRequestItem) []budgetItemDTO {
	out := make([]budgetItemDTO, len(items))
	for i := range items {
		out[i] = toBudgetItemDTO(&items[i])
	}
	return out
}

type accountDTO struct {
	ID              uuid.UUID `json:"id"`
	FiscalYear      int       `json:"fiscal_year"`
	LineItemID      string    `json:"line_item_id"`
	ApprovedBudget  int64     `json:"approved_budget"`
	ApprovedQty     int64     `json:"approved_qty"`
	UsedBudget      int64     `json:"used_budget"`
	UsedQty         int64     `json:"used_qty"`
	ReservedBudget  int64     `json:"reserved_budget"`
	ReservedQty     int64     `json:"reserved_qty"`
	RemainingBudget int64     `json:"remaining_budget"`
	RemainingQty    int64     `json:"remaining_qty"`
	IsLocked        bool      `json:"is_locked"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toAccountDTO(a *domain.LedgerAccount) accountDTO {
	return accountDTO{
		ID:              a.ID,
		FiscalYear:      a.FiscalYear,
		LineItemID:      a.LineItemID,
		ApprovedBudget:  a.ApprovedBudget,
		ApprovedQty:     a.ApprovedQty,
		UsedBudget:      a.UsedBudget,
		UsedQty:         a.UsedQty,
		ReservedBudget:  a.ReservedBudget,
		ReservedQty:     a.ReservedQty,
		RemainingBudget: a.RemainingBudget(),
		RemainingQty:    a.RemainingQty(),
		IsLocked:        a.IsLocked,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toAccountDTOs(accounts []domain.LedgerAccount) []accountDTO {
	out := make([]accountDTO, len(accounts))
	for i := range accounts {
		out[i] = toAccountDTO(&accounts[i])
	}
	return out
}

type transactionDTO struct {
	ID            uuid.UUID  `json:"id"`
	AccountID     uuid.UUID  `json:"account_id"`
	Type          string     `json:"type"`
	Amount        int64      `json:"amount"`
	Qty           int64      `json:"qty"`
	ReferenceType string     `json:"reference_type"`
	ReferenceID   string     `json:"reference_id"`
	ReserveID     *uuid.UUID `json:"reserve_id,omitempty"`
	Actor         string     `json:"actor"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toTransactionDTOs(txns []domain.LedgerTransaction) []transactionDTO {
	out := make([]transactionDTO, len(txns))
	for i, t := range txns {
		out[i] = transactionDTO{
			ID:            t.ID,
			AccountID:     t.AccountID,
			Type:          string(t.Type),
			Amount:        t.Amount,
			Qty:           t.Qty,
			ReferenceType: t.ReferenceType,
			ReferenceID:   t.ReferenceID,
			ReserveID:     t.ReserveID,
			Actor:         t.Actor,
			CreatedAt:     t.CreatedAt,
		}
	}
	return out
}

// principalOrRespond fetches the caller set by the auth middleware and writes
// a 401 when it is missing.
func principalOrRespond(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
	}
	return p, ok
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: name, Message: "must be a valid UUID"}})
		return uuid.Nil, false
	}
	return id, true
}
