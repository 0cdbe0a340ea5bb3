package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/drug-budget-ledger/internal/domain"
)

const ledgerTransactionColumns = `id, account_id, type, amount, qty, reference_type, reference_id,
	reserve_id, actor, created_at`

const ledgerTransactionColumnsT = `t.id, t.account_id, t.type, t.amount, t.qty, t.reference_type, t.reference_id,
	t.reserve_id, t.actor, t.created_at`

// openReserveFilter matches RESERVE rows no COMMIT or RELEASE points at yet.
const openReserveFilter = `t.type = 'RESERVE' AND NOT EXISTS (
	SELECT 1 FROM ledger_transactions f WHERE f.reserve_id = t.id
)`

type LedgerTransactionRepository struct {
	db *sql.DB
}

func NewLedgerTransactionRepository(db *sql.DB) *LedgerTransactionRepository {
	return &LedgerTransactionRepository{db: db}
}

func (r *LedgerTransactionRepository) Append(ctx context.Context, tx *sql.Tx, t *domain.LedgerTransaction) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_transactions (
			id, account_id, type, amount, qty, reference_type, reference_id,
			reserve_id, actor, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.AccountID, t.Type, t.Amount, t.Qty, t.ReferenceType, t.ReferenceID,
		t.ReserveID, t.Actor, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Append: %w", err)
	}
	return nil
}

// FindOpenReserves must run under the account's row lock for its answer to
// hold until the transaction ends.
func (r *LedgerTransactionRepository) FindOpenReserves(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, referenceType, referenceID string) ([]domain.LedgerTransaction, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+ledgerTransactionColumnsT+` FROM ledger_transactions t
		WHERE t.account_id = $1 AND t.reference_type = $2 AND t.reference_id = $3
		AND `+openReserveFilter+`
		ORDER BY t.created_at, t.id`,
		accountID, referenceType, referenceID,
	)
	if err != nil {
		return nil, fmt.Errorf("FindOpenReserves: %w", err)
	}
	txns, err := collectTransactions(rows)
	if err != nil {
		return nil, fmt.Errorf("FindOpenReserves: %w", err)
	}
	return txns, nil
}

// OpenReserveAccounts lists, in ascending order, the accounts that currently
// hold an open reservation for the reference. It takes no locks.
func (r *LedgerTransactionRepository) OpenReserveAccounts(ctx context.Context, referenceType, referenceID string) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT t.account_id FROM ledger_transactions t
		WHERE t.reference_type = $1 AND t.reference_id = $2 AND `+openReserveFilter+`
		ORDER BY t.account_id`,
		referenceType, referenceID,
	)
	if err != nil {
		return nil, fmt.Errorf("OpenReserveAccounts: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("OpenReserveAccounts: scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("OpenReserveAccounts: rows: %w", err)
	}
	return ids, nil
}

// ListByReference returns the rows of a reference in write order. An empty
// referenceType matches any type.
func (r *LedgerTransactionRepository) ListByReference(ctx context.Context, referenceType, referenceID string) ([]domain.LedgerTransaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerTransactionColumns+` FROM ledger_transactions
		WHERE ($1::text = '' OR reference_type = $1) AND reference_id = $2
		ORDER BY created_at, id`,
		referenceType, referenceID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByReference: %w", err)
	}
	txns, err := collectTransactions(rows)
	if err != nil {
		return nil, fmt.Errorf("ListByReference: %w", err)
	}
	return txns, nil
}

// ListByAccount returns the whole log of one account in write order. Pass the
// locking transaction when the result feeds a balance rebuild.
func (r *LedgerTransactionRepository) ListByAccount(ctx context.Context, q Querier, accountID uuid.UUID) ([]domain.LedgerTransaction, error) {
	if q == nil {
		q = r.db
	}
	rows, err := q.QueryContext(ctx,
		`SELECT `+ledgerTransactionColumns+` FROM ledger_transactions
		WHERE account_id = $1 ORDER BY created_at, id`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByAccount: %w", err)
	}
	txns, err := collectTransactions(rows)
	if err != nil {
		return nil, fmt.Errorf("ListByAccount: %w", err)
	}
	return txns, nil
}

func collectTransactions(rows *sql.Rows) ([]domain.LedgerTransaction, error) {
	defer rows.Close()

	var txns []domain.LedgerTransaction
	for rows.Next() {
		t, err := scanLedgerTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return txns, nil
}

func scanLedgerTransaction(s scanner) (*domain.LedgerTransaction, error) {
	var t domain.LedgerTransaction
	var reserveID uuid.NullUUID
	err := s.Scan(
		&t.ID, &t.AccountID, &t.Type, &t.Amount, &t.Qty, &t.ReferenceType, &t.ReferenceID,
		&reserveID, &t.Actor, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if reserveID.Valid {
		t.ReserveID = &reserveID.UUID
	}
	return &t, nil
}
