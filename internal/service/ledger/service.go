// Package ledger implements the budget control ledger: advisory checks and the
// reserve/commit/release protocol over per (fiscal year, line item) accounts.
//
// Every mutation locks exactly one account row, appends its transaction log
// row and updates the balance in the same database transaction, and only
// reports success after that transaction commits.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/drug-budget-ledger/internal/domain"
	"github.com/josh-kwaku/drug-budget-ledger/internal/logging"
	"github.com/josh-kwaku/drug-budget-ledger/internal/metrics"
	"github.com/josh-kwaku/drug-budget-ledger/internal/repository"
)

type accountRepo interface {
	GetByKey(ctx context.Context, fiscalYear int, lineItemID string) (*domain.LedgerAccount, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.LedgerAccount, error)
	GetForUpdateByKey(ctx context.Context, tx *sql.Tx, fiscalYear int, lineItemID string) (*domain.LedgerAccount, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.LedgerAccount, error)
	ListByFiscalYear(ctx context.Context, q repository.Querier, fiscalYear int) ([]domain.LedgerAccount, error)
	UpdateBalances(ctx context.Context, tx *sql.Tx, a *domain.LedgerAccount) error
	SetLocked(ctx context.Context, tx *sql.Tx, a *domain.LedgerAccount, locked bool) error
}

type transactionRepo interface {
	Append(ctx context.Context, tx *sql.Tx, t *domain.LedgerTransaction) error
	FindOpenReserves(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, referenceType, referenceID string) ([]domain.LedgerTransaction, error)
	OpenReserveAccounts(ctx context.Context, referenceType, referenceID string) ([]uuid.UUID, error)
	ListByReference(ctx context.Context, referenceType, referenceID string) ([]domain.LedgerTransaction, error)
	ListByAccount(ctx context.Context, q repository.Querier, accountID uuid.UUID) ([]domain.LedgerTransaction, error)
}

type Service struct {
	accounts    accountRepo
	txns        transactionRepo
	db          *sql.DB
	lockTimeout time.Duration
	metrics     *metrics.Metrics
}

func NewService(accounts accountRepo, txns transactionRepo, db *sql.DB, lockTimeout time.Duration, m *metrics.Metrics) *Service {
	return &Service{
		accounts:    accounts,
		txns:        txns,
		db:          db,
		lockTimeout: lockTimeout,
		metrics:     m,
	}
}

type CheckRequest struct {
	FiscalYear int
	LineItemID string
	Amount     int64
	Qty        int64
}

type ReserveRequest struct {
	FiscalYear    int
	LineItemID    string
	Amount        int64
	Qty           int64
	ReferenceType string
	ReferenceID   string
	Actor         string
}

// FinalizeRequest identifies the reservations a commit or release acts on.
type FinalizeRequest struct {
	ReferenceType string
	ReferenceID   string
	Actor         string
}

// Check is advisory: it takes no lock and a later Reserve may still fail.
func (s *Service) Check(ctx context.Context, req CheckRequest) (*domain.CheckResult, error) {
	started := time.Now()

	if err := validateCheck(req); err != nil {
		s.metrics.ObserveLedger("check", outcomeLabel(nil, err), started)
		return nil, fmt.Errorf("Check: %w", err)
	}

	acct, err := s.accounts.GetByKey(ctx, req.FiscalYear, req.LineItemID)
	if err != nil {
		s.metrics.ObserveLedger("check", outcomeLabel(nil, err), started)
		return nil, fmt.Errorf("Check: %w", err)
	}

	res := &domain.CheckResult{
		CanProceed:      !acct.IsLocked && acct.CanAfford(req.Amount, req.Qty),
		RemainingBudget: acct.RemainingBudget(),
		RemainingQty:    acct.RemainingQty(),
	}
	s.metrics.ObserveLedger("check", "OK", started)
	return res, nil
}

func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (*domain.LedgerResult, error) {
	started := time.Now()
	log := logging.FromContext(ctx).With(
		"fiscal_year", req.FiscalYear,
		"line_item_id", req.LineItemID,
		"reference_type", req.ReferenceType,
		"reference_id", req.ReferenceID,
	)

	res, err := s.reserve(ctx, req)
	s.metrics.ObserveLedger("reserve", outcomeLabel(res, err), started)

	var insufficient *domain.InsufficientBudgetError
	switch {
	case errors.As(err, &insufficient):
		log.Info("reservation refused",
			"required_budget", insufficient.RequiredBudget,
			"available_budget", insufficient.AvailableBudget,
			"required_qty", insufficient.RequiredQty,
			"available_qty", insufficient.AvailableQty,
		)
	case err != nil:
		log.Warn("reservation failed", "error", err)
	case res.Replayed:
		log.Info("reservation replayed", "transaction_id", res.Transactions[0].ID)
	default:
		log.Info("budget reserved",
			"transaction_id", res.Transactions[0].ID,
			"amount", req.Amount,
			"qty", req.Qty,
			"remaining_budget", res.Accounts[0].RemainingBudget(),
		)
	}
	return res, err
}

func (s *Service) reserve(ctx context.Context, req ReserveRequest) (*domain.LedgerResult, error) {
	if err := validateReserve(req); err != nil {
		return nil, fmt.Errorf("Reserve: %w", err)
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("Reserve: %w", err)
	}
	defer tx.Rollback()

	acct, err := s.accounts.GetForUpdateByKey(ctx, tx, req.FiscalYear, req.LineItemID)
	if err != nil {
		return nil, fmt.Errorf("Reserve: %w", repository.Classify(ctx, err))
	}

	open, err := s.txns.FindOpenReserves(ctx, tx, acct.ID, req.ReferenceType, req.ReferenceID)
	if err != nil {
		return nil, fmt.Errorf("Reserve: %w", repository.Classify(ctx, err))
	}
	if len(open) > 0 {
		return &domain.LedgerResult{
			Outcome:      domain.OutcomeReserved,
			Replayed:     true,
			Accounts:     []domain.LedgerAccount{*acct},
			Transactions: open,
		}, nil
	}

	if acct.IsLocked {
		return nil, fmt.Errorf("Reserve: %w", domain.ErrAccountLocked)
	}

	if !acct.CanAfford(req.Amount, req.Qty) {
		return nil, fmt.Errorf("Reserve: %w", &domain.InsufficientBudgetError{
			RequiredBudget:  req.Amount,
			AvailableBudget: acct.RemainingBudget(),
			RequiredQty:     req.Qty,
			AvailableQty:    acct.RemainingQty(),
		})
	}

	txn := &domain.LedgerTransaction{
		ID:            uuid.New(),
		AccountID:     acct.ID,
		Type:          domain.TransactionTypeReserve,
		Amount:        req.Amount,
		Qty:           req.Qty,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		Actor:         req.Actor,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.txns.Append(ctx, tx, txn); err != nil {
		return nil, fmt.Errorf("Reserve: %w", repository.Classify(ctx, err))
	}

	acct.ReservedBudget += req.Amount
	acct.ReservedQty += req.Qty
	if err := s.accounts.UpdateBalances(ctx, tx, acct); err != nil {
		return nil, fmt.Errorf("Reserve: %w", repository.Classify(ctx, err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Reserve: commit: %w", repository.Classify(ctx, err))
	}

	return &domain.LedgerResult{
		Outcome:      domain.OutcomeReserved,
		Accounts:     []domain.LedgerAccount{*acct},
		Transactions: []domain.LedgerTransaction{*txn},
	}, nil
}

// Commit turns every open reservation of the reference into spend.
func (s *Service) Commit(ctx context.Context, req FinalizeRequest) (*domain.LedgerResult, error) {
	return s.finalize(ctx, domain.TransactionTypeCommit, req)
}

// Release cancels every open reservation of the reference.
func (s *Service) Release(ctx context.Context, req FinalizeRequest) (*domain.LedgerResult, error) {
	return s.finalize(ctx, domain.TransactionTypeRelease, req)
}

func (s *Service) finalize(ctx context.Context, kind domain.TransactionType, req FinalizeRequest) (*domain.LedgerResult, error) {
	started := time.Now()
	op := operationName(kind)
	log := logging.FromContext(ctx).With(
		"operation", op,
		"reference_type", req.ReferenceType,
		"reference_id", req.ReferenceID,
	)

	res, err := s.finalizeAll(ctx, kind, req)
	s.metrics.ObserveLedger(op, outcomeLabel(res, err), started)

	switch {
	case err != nil:
		log.Warn("finalize failed", "error", err)
	case res.Outcome == domain.OutcomeAlreadyFinalized:
		log.Info("nothing open to finalize")
	default:
		log.Info("reservations finalized", "accounts", len(res.Accounts), "transactions", len(res.Transactions))
	}
	return res, err
}

// finalizeAll handles each account in its own transaction so a single call
// never holds two account locks. A failure part way leaves the earlier
// accounts finalized; retrying is safe because they no longer have anything open.
func (s *Service) finalizeAll(ctx context.Context, kind domain.TransactionType, req FinalizeRequest) (*domain.LedgerResult, error) {
	name := operationName(kind)
	if err := validateFinalize(req); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	accountIDs, err := s.txns.OpenReserveAccounts(ctx, req.ReferenceType, req.ReferenceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, repository.Classify(ctx, err))
	}

	res := &domain.LedgerResult{Outcome: domain.OutcomeAlreadyFinalized}
	for _, id := range accountIDs {
		acct, txns, err := s.finalizeAccount(ctx, kind, id, req)
		if err != nil {
			return nil, fmt.Errorf("%s: account %s: %w", name, id, err)
		}
		if len(txns) == 0 {
			continue
		}
		res.Accounts = append(res.Accounts, *acct)
		res.Transactions = append(res.Transactions, txns...)
	}

	if len(res.Transactions) > 0 {
		res.Outcome = domain.OutcomeCommitted
		if kind == domain.TransactionTypeRelease {
			res.Outcome = domain.OutcomeReleased
		}
	}
	return res, nil
}

func (s *Service) finalizeAccount(ctx context.Context, kind domain.TransactionType, accountID uuid.UUID, req FinalizeRequest) (*domain.LedgerAccount, []domain.LedgerTransaction, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	acct, err := s.accounts.GetForUpdate(ctx, tx, accountID)
	if err != nil {
		return nil, nil, repository.Classify(ctx, err)
	}

	// Re-read under the lock: a concurrent commit or release may have won.
	open, err := s.txns.FindOpenReserves(ctx, tx, accountID, req.ReferenceType, req.ReferenceID)
	if err != nil {
		return nil, nil, repository.Classify(ctx, err)
	}
	if len(open) == 0 {
		return acct, nil, nil
	}

	now := time.Now().UTC()
	written := make([]domain.LedgerTransaction, 0, len(open))
	for _, reserve := range open {
		reserveID := reserve.ID
		txn := domain.LedgerTransaction{
			ID:            uuid.New(),
			AccountID:     accountID,
			Type:          kind,
			Amount:        reserve.Amount,
			Qty:           reserve.Qty,
			ReferenceType: req.ReferenceType,
			ReferenceID:   req.ReferenceID,
			ReserveID:     &reserveID,
			Actor:         req.Actor,
			CreatedAt:     now,
		}
		if err := s.txns.Append(ctx, tx, &txn); err != nil {
			return nil, nil, repository.Classify(ctx, err)
		}

		acct.ReservedBudget -= reserve.Amount
		acct.ReservedQty -= reserve.Qty
		if kind == domain.TransactionTypeCommit {
			acct.UsedBudget += reserve.Amount
			acct.UsedQty += reserve.Qty
		}
		written = append(written, txn)
	}

	if err := s.accounts.UpdateBalances(ctx, tx, acct); err != nil {
		return nil, nil, repository.Classify(ctx, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", repository.Classify(ctx, err))
	}
	return acct, written, nil
}

func (s *Service) GetAccount(ctx context.Context, fiscalYear int, lineItemID string) (*domain.LedgerAccount, error) {
	acct, err := s.accounts.GetByKey(ctx, fiscalYear, lineItemID)
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return acct, nil
}

func (s *Service) ListTransactions(ctx context.Context, referenceType, referenceID string) ([]domain.LedgerTransaction, error) {
	v := &domain.ValidationError{}
	if referenceID == "" {
		v.Add("reference_id", "is required")
	}
	if err := v.OrNil(); err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}

	txns, err := s.txns.ListByReference(ctx, referenceType, referenceID)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	return txns, nil
}

// LockAccount freezes an account for new reservations. Commit and release keep
// working on a locked account so open holds can be settled.
func (s *Service) LockAccount(ctx context.Context, fiscalYear int, lineItemID, actor string) (*domain.LedgerAccount, error) {
	acct, err := s.setLocked(ctx, fiscalYear, lineItemID, true, actor)
	if err != nil {
		return nil, fmt.Errorf("LockAccount: %w", err)
	}
	return acct, nil
}

func (s *Service) UnlockAccount(ctx context.Context, fiscalYear int, lineItemID, actor string) (*domain.LedgerAccount, error) {
	acct, err := s.setLocked(ctx, fiscalYear, lineItemID, false, actor)
	if err != nil {
		return nil, fmt.Errorf("UnlockAccount: %w", err)
	}
	return acct, nil
}

func (s *Service) setLocked(ctx context.Context, fiscalYear int, lineItemID string, locked bool, actor string) (*domain.LedgerAccount, error) {
	v := &domain.ValidationError{}
	requireAccountKey(v, fiscalYear, lineItemID)
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	acct, err := s.accounts.GetForUpdateByKey(ctx, tx, fiscalYear, lineItemID)
	if err != nil {
		return nil, repository.Classify(ctx, err)
	}
	if acct.IsLocked == locked {
		return acct, nil
	}

	if err := s.accounts.SetLocked(ctx, tx, acct, locked); err != nil {
		return nil, repository.Classify(ctx, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", repository.Classify(ctx, err))
	}

	logging.FromContext(ctx).Info("ledger account lock changed",
		"account_id", acct.ID,
		"fiscal_year", fiscalYear,
		"line_item_id", lineItemID,
		"is_locked", locked,
		"actor", actor,
	)
	return acct, nil
}

func (s *Service) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", repository.Classify(ctx, err))
	}
	if err := repository.SetLockTimeout(ctx, tx, s.lockTimeout); err != nil {
		tx.Rollback()
		return nil, repository.Classify(ctx, err)
	}
	return tx, nil
}

func operationName(kind domain.TransactionType) string {
	if kind == domain.TransactionTypeRelease {
		return "release"
	}
	return "commit"
}

func outcomeLabel(res *domain.LedgerResult, err error) string {
	switch {
	case err == nil && res == nil:
		return "OK"
	case err == nil && res.Replayed:
		return "REPLAYED"
	case err == nil:
		return string(res.Outcome)
	case errors.Is(err, domain.ErrInsufficientBudget):
		return "INSUFFICIENT_BUDGET"
	case errors.Is(err, domain.ErrRetryLater):
		return "RETRY_LATER"
	case errors.Is(err, domain.ErrValidation):
		return "INVALID"
	case errors.Is(err, domain.ErrAccountLocked):
		return "ACCOUNT_LOCKED"
	case errors.Is(err, domain.ErrAccountNotFound):
		return "NOT_FOUND"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "CANCELED"
	default:
		return "ERROR"
	}
}
