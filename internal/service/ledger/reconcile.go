package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/drug-budget-ledger/internal/domain"
	"github.com/josh-kwaku/drug-budget-ledger/internal/logging"
	"github.com/josh-kwaku/drug-budget-ledger/internal/repository"
)

func replay(txns []domain.LedgerTransaction) domain.ReplayedBalance {
	var b domain.ReplayedBalance
	for _, t := range txns {
		b.Apply(t)
	}
	return b
}

// Replay recomputes an account's used and reserved figures from its log.
func (s *Service) Replay(ctx context.Context, accountID uuid.UUID) (domain.ReplayedBalance, error) {
	txns, err := s.txns.ListByAccount(ctx, nil, accountID)
	if err != nil {
		return domain.ReplayedBalance{}, fmt.Errorf("Replay: %w", err)
	}
	return replay(txns), nil
}

// Reconcile compares every account of the fiscal year against its replayed
// log. Both are read from one repeatable read snapshot so in-flight mutations
// are never reported as drift.
func (s *Service) Reconcile(ctx context.Context, fiscalYear int) ([]domain.Drift, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("Reconcile: begin tx: %w", err)
	}
	defer tx.Rollback()

	accounts, err := s.accounts.ListByFiscalYear(ctx, tx, fiscalYear)
	if err != nil {
		return nil, fmt.Errorf("Reconcile: %w", err)
	}

	var drifts []domain.Drift
	for i := range accounts {
		txns, err := s.txns.ListByAccount(ctx, tx, accounts[i].ID)
		if err != nil {
			return nil, fmt.Errorf("Reconcile: %w", err)
		}
		b := replay(txns)
		if !b.Matches(&accounts[i]) {
			drifts = append(drifts, domain.Drift{Account: accounts[i], Replayed: b})
		}
	}

	logging.FromContext(ctx).Info("ledger reconciled",
		"fiscal_year", fiscalYear,
		"accounts", len(accounts),
		"drifted", len(drifts),
	)
	return drifts, nil
}

// Rebuild overwrites the stored used and reserved figures with the replayed
// ones under the account lock. It reports whether anything changed.
func (s *Service) Rebuild(ctx context.Context, accountID uuid.UUID, actor string) (*domain.LedgerAccount, bool, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("Rebuild: %w", err)
	}
	defer tx.Rollback()

	acct, err := s.accounts.GetForUpdate(ctx, tx, accountID)
	if err != nil {
		return nil, false, fmt.Errorf("Rebuild: %w", repository.Classify(ctx, err))
	}

	txns, err := s.txns.ListByAccount(ctx, tx, accountID)
	if err != nil {
		return nil, false, fmt.Errorf("Rebuild: %w", repository.Classify(ctx, err))
	}
	b := replay(txns)
	if b.Matches(acct) {
		return acct, false, nil
	}

	before := *acct
	acct.UsedBudget = b.UsedBudget
	acct.UsedQty = b.UsedQty
	acct.ReservedBudget = b.ReservedBudget
	acct.ReservedQty = b.ReservedQty
	if err := s.accounts.UpdateBalances(ctx, tx, acct); err != nil {
		return nil, false, fmt.Errorf("Rebuild: %w", repository.Classify(ctx, err))
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("Rebuild: commit: %w", repository.Classify(ctx, err))
	}

	logging.FromContext(ctx).Warn("ledger account rebuilt from log",
		"account_id", accountID,
		"actor", actor,
		"used_budget_before", before.UsedBudget,
		"reserved_budget_before", before.ReservedBudget,
		"used_budget_after", acct.UsedBudget,
		"reserved_budget_after", acct.ReservedBudget,
	)
	return acct, true, nil
}
