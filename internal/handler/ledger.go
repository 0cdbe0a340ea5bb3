package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/josh-kwaku/drug-budget-ledger/internal/domain"
	"github.com/josh-kwaku/drug-budget-ledger/internal/service/ledger"
)

type ledgerService interface {
	Check(ctx context.Context, req ledger.CheckRequest) (*domain.CheckResult, error)
	Reserve(ctx context.Context, req ledger.ReserveRequest) (*domain.LedgerResult, error)
	Commit(ctx context.Context, req ledger.FinalizeRequest) (*domain.LedgerResult, error)
	Release(ctx context.Context, req ledger.FinalizeRequest) (*domain.LedgerResult, error)
	GetAccount(ctx context.Context, fiscalYear int, lineItemID string) (*domain.LedgerAccount, error)
	ListTransactions(ctx context.Context, referenceType, referenceID string) ([]domain.LedgerTransaction, error)
	LockAccount(ctx context.Context, fiscalYear int, lineItemID, actor string) (*domain.LedgerAccount, error)
	UnlockAccount(ctx context.Context, fiscalYear int, lineItemID, actor string) (*domain.LedgerAccount, error)
}

type LedgerHandler struct {
	ledger ledgerService
}

func NewLedgerHandler(ledger ledgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

type checkRequest struct {
	FiscalYear int    `json:"fiscal_year"`
	LineItemID string `json:"line_item_id"`
	Amount     int64  `json:"amount"`
	Qty        int64  `json:"qty"`
}

type checkResponse struct {
	CanProceed      bool  `json:"can_proceed"`
	RemainingBudget int64 `json:"remaining_budget"`
	RemainingQty    int64 `json:"remaining_qty"`
}

type reserveRequest struct {
	FiscalYear    int    `json:"fiscal_year"`
	LineItemID    string `json:"line_item_id"`
	Amount        int64  `json:"amount"`
	Qty           int64  `json:"qty"`
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id"`
}

type finalizeRequest struct {
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id"`
}

type ledgerResultResponse struct {
	Outcome      string           `json:"outcome"`
	Replayed     bool             `json:"replayed"`
	Accounts     []accountDTO     `json:"accounts"`
	Transactions []transactionDTO `json:"transactions"`
}

func toLedgerResultResponse(res *domain.LedgerResult) ledgerResultResponse {
	return ledgerResultResponse{
		Outcome:      string(res.Outcome),
		Replayed:     res.Replayed,
		Accounts:     toAccountDTOs(res.Accounts),
		Transactions: toTransactionDTOs(res.Transactions),
	}
}

func (h *LedgerHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	res, err := h.ledger.Check(r.Context(), ledger.CheckRequest{
		FiscalYear: req.FiscalYear,
		LineItemID: req.LineItemID,
		Amount:     req.Amount,
		Qty:        req.Qty,
	})
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, checkResponse{
		CanProceed:      res.CanProceed,
		RemainingBudget: res.RemainingBudget,
		RemainingQty:    res.RemainingQty,
	})
}

func (h *LedgerHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrRespond(w, r)
	if !ok {
		return
	}

	var req reserveRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	res, err := h.ledger.Reserve(r.Context(), ledger.ReserveRequest{
		FiscalYear:    req.FiscalYear,
		LineItemID:    req.LineItemID,
		Amount:        req.Amount,
		Qty:           req.Qty,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		Actor:         p.Actor(),
	})
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toLedgerResultResponse(res))
}

func (h *LedgerHandler) Commit(w http.ResponseWriter, r *http.Request) {
	h.finalize(w, r, h.ledger.Commit)
}

func (h *LedgerHandler) Release(w http.ResponseWriter, r *http.Request) {
	h.finalize(w, r, h.ledger.Release)
}

func (h *LedgerHandler) finalize(w http.ResponseWriter, r *http.Request, op func(context.Context, ledger.FinalizeRequest) (*domain.LedgerResult, error)) {
	p, ok := principalOrRespond(w, r)
	if !ok {
		return
	}

	var req finalizeRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	res, err := op(r.Context(), ledger.FinalizeRequest{
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		Actor:         p.Actor(),
	})
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toLedgerResultResponse(res))
}

func accountKeyOrRespond(w http.ResponseWriter, r *http.Request) (int, string, bool) {
	fy, err := strconv.Atoi(r.PathValue("fiscalYear"))
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "fiscal_year", Message: "must be a number"}})
		return 0, "", false
	}
	return fy, r.PathValue("lineItemID"), true
}

func (h *LedgerHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	fy, line, ok := accountKeyOrRespond(w, r)
	if !ok {
		return
	}

	acct, err := h.ledger.GetAccount(r.Context(), fy, line)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toAccountDTO(acct))
}

func (h *LedgerHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	txns, err := h.ledger.ListTransactions(r.Context(), q.Get("reference_type"), q.Get("reference_id"))
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toTransactionDTOs(txns))
}

func (h *LedgerHandler) LockAccount(w http.ResponseWriter, r *http.Request) {
	h.setLocked(w, r, h.ledger.LockAccount)
}

func (h *LedgerHandler) UnlockAccount(w http.ResponseWriter, r *http.Request) {
	h.setLocked(w, r, h.ledger.UnlockAccount)
}

func (h *LedgerHandler) setLocked(w http.ResponseWriter, r *http.Request, op func(context.Context, int, string, string) (*domain.LedgerAccount, error)) {
	p, ok := principalOrRespond(w, r)
	if !ok {
		return
	}
	fy, line, ok := accountKeyOrRespond(w, r)
	if !ok {
		return
	}

	acct, err := op(r.Context(), fy, line, p.Actor())
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toAccountDTO(acct))
}
