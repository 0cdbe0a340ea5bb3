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

const budgetRequestColumns = `id, fiscal_year, status, created_by, submitted_at, approved_by,
	approved_at, rejection_reason, version, created_at, updated_at`

type BudgetRequestRepository struct {
	db *sql.DB
}

func NewBudgetRequestRepository(db *sql.DB) *BudgetRequestRepository {
	return &BudgetRequestRepository{db: db}
}

func (r *BudgetRequestRepository) Create(ctx context.Context, tx *sql.Tx, br *domain.BudgetRequest) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO budget_requests (
			id, fiscal_year, status, created_by, submitted_at, approved_by,
			approved_at, rejection_reason, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		br.ID, br.FiscalYear, br.Status, br.CreatedBy, br.SubmittedAt, br.ApprovedBy,
		br.ApprovedAt, br.RejectionReason, br.Version, br.CreatedAt, br.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *BudgetRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.BudgetRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+budgetRequestColumns+` FROM budget_requests WHERE id = $1`, id,
	)
	br, err := scanBudgetRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return br, nil
}

func (r *BudgetRequestRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.BudgetRequest, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+budgetRequestColumns+` FROM budget_requests WHERE id = $1 FOR UPDATE`, id,
	)
	br, err := scanBudgetRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return br, nil
}

// UpdateStatus persists the workflow fields of br and bumps its version.
func (r *BudgetRequestRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, br *domain.BudgetRequest) error {
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE budget_requests SET
			status = $1, submitted_at = $2, approved_by = $3, approved_at = $4,
			rejection_reason = $5, version = version + 1, updated_at = $6
		WHERE id = $7 AND version = $8`,
		br.Status, br.SubmittedAt, br.ApprovedBy, br.ApprovedAt,
		br.RejectionReason, now, br.ID, br.Version,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}
	br.Version++
	br.UpdatedAt = now
	return nil
}

func scanBudgetRequest(s scanner) (*domain.BudgetRequest, error) {
	var br domain.BudgetRequest
	err := s.Scan(
		&br.ID, &br.FiscalYear, &br.Status, &br.CreatedBy, &br.SubmittedAt, &br.ApprovedBy,
		&br.ApprovedAt, &br.RejectionReason, &br.Version, &br.CreatedAt, &br.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &br, nil
}
