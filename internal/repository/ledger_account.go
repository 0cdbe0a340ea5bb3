package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/drug-budget-ledger/internal/domain"
)

const ledgerAccountColumns = `id, fiscal_year, line_item_id, approved_budget, approved_qty,
	used_budget, used_qty, reserved_budget, reserved_qty, is_locked, version,
	created_at, updated_at`

type LedgerAccountRepository struct {
	db *sql.DB
}

func NewLedgerAccountRepository(db *sql.DB) *LedgerAccountRepository {
	return &LedgerAccountRepository{db: db}
}

// GetByKey reads without locking; the result may be stale by the time the
// caller acts on it.
func (r *LedgerAccountRepository) GetByKey(ctx context.Context, fiscalYear int, lineItemID string) (*domain.LedgerAccount, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+ledgerAccountColumns+` FROM ledger_accounts
		WHERE fiscal_year = $1 AND line_item_id = $2`,
		fiscalYear, lineItemID,
	)
	a, err := scanLedgerAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByKey: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetByKey: %w", err)
	}
	return a, nil
}

func (r *LedgerAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.LedgerAccount, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+ledgerAccountColumns+` FROM ledger_accounts WHERE id = $1`, id,
	)
	a, err := scanLedgerAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return a, nil
}

func (r *LedgerAccountRepository) GetForUpdateByKey(ctx context.Context, tx *sql.Tx, fiscalYear int, lineItemID string) (*domain.LedgerAccount, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+ledgerAccountColumns+` FROM ledger_accounts
		WHERE fiscal_year = $1 AND line_item_id = $2 FOR UPDATE`,
		fiscalYear, lineItemID,
	)
	a, err := scanLedgerAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdateByKey: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetForUpdateByKey: %w", err)
	}
	return a, nil
}

func (r *LedgerAccountRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.LedgerAccount, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+ledgerAccountColumns+` FROM ledger_accounts WHERE id = $1 FOR UPDATE`, id,
	)
	a, err := scanLedgerAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return a, nil
}

// ListByFiscalYear reads every account of the year. Pass a transaction to read
// from its snapshot, or nil to use the pool.
func (r *LedgerAccountRepository) ListByFiscalYear(ctx context.Context, q Querier, fiscalYear int) ([]domain.LedgerAccount, error) {
	if q == nil {
		q = r.db
	}
	rows, err := q.QueryContext(ctx,
		`SELECT `+ledgerAccountColumns+` FROM ledger_accounts
		WHERE fiscal_year = $1 ORDER BY line_item_id`, fiscalYear,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByFiscalYear: %w", err)
	}
	defer rows.Close()

	var accounts []domain.LedgerAccount
	for rows.Next() {
		a, err := scanLedgerAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByFiscalYear: scan: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByFiscalYear: rows: %w", err)
	}
	return accounts, nil
}

// UpdateBalances writes used/reserved figures and bumps the version. The
// caller holds the row lock; the version check catches a caller that does not.
func (r *LedgerAccountRepository) UpdateBalances(ctx context.Context, tx *sql.Tx, a *domain.LedgerAccount) error {
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE ledger_accounts SET
			used_budget = $1, used_qty = $2, reserved_budget = $3, reserved_qty = $4,
			version = version + 1, updated_at = $5
		WHERE id = $6 AND version = $7`,
		a.UsedBudget, a.UsedQty, a.ReservedBudget, a.ReservedQty, now, a.ID, a.Version,
	)
	if err != nil {
		return fmt.Errorf("UpdateBalances: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		return fmt.Errorf("UpdateBalances: %w", err)
	}
	a.Version++
	a.UpdatedAt = now
	return nil
}

func (r *LedgerAccountRepository) SetLocked(ctx context.Context, tx *sql.Tx, a *domain.LedgerAccount, locked bool) error {
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE ledger_accounts SET is_locked = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		locked, now, a.ID, a.Version,
	)
	if err != nil {
		return fmt.Errorf("SetLocked: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		return fmt.Errorf("SetLocked: %w", err)
	}
	a.IsLocked = locked
	a.Version++
	a.UpdatedAt = now
	return nil
}

// MergeApproved creates the account for (fiscalYear, lineItemID) or adds the
// approved figures to the existing one.
func (r *LedgerAccountRepository) MergeApproved(ctx context.Context, tx *sql.Tx, fiscalYear int, lineItemID string, budget, qty int64) (*domain.LedgerAccount, error) {
	now := time.Now().UTC()
	row := tx.QueryRowContext(ctx,
		`INSERT INTO ledger_accounts (
			id, fiscal_year, line_item_id, approved_budget, approved_qty, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (fiscal_year, line_item_id) DO UPDATE SET
			approved_budget = ledger_accounts.approved_budget + EXCLUDED.approved_budget,
			approved_qty = ledger_accounts.approved_qty + EXCLUDED.approved_qty,
			version = ledger_accounts.version + 1,
			updated_at = EXCLUDED.updated_at
		RETURNING `+ledgerAccountColumns,
		uuid.New(), fiscalYear, lineItemID, budget, qty, now,
	)
	a, err := scanLedgerAccount(row)
	if err != nil {
		return nil, fmt.Errorf("MergeApproved: %w", err)
	}
	return a, nil
}

func expectOneRow(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

func scanLedgerAccount(s scanner) (*domain.LedgerAccount, error) {
	var a domain.LedgerAccount
	err := s.Scan(
		&a.ID, &a.FiscalYear, &a.LineItemID, &a.ApprovedBudget, &a.ApprovedQty,
		&a.UsedBudget, &a.UsedQty, &a.ReservedBudget, &a.ReservedQty, &a.IsLocked, &a.Version,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
