package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/josh-kwaku/drug-budget-ledger/internal/domain"
)

const budgetItemColumns = `id, request_id, line_item_id, drug_type, usage_year1, usage_year2,
	usage_year3, estimated_usage, current_stock, unit_price, estimated_purchase,
	requested_qty, requested_amount, updated_at`

// ItemFilter narrows a request's items. Empty fields match everything.
type ItemFilter struct {
	DrugType string
	ItemIDs  []uuid.UUID
}

type BudgetItemRepository struct {
	db *sql.DB
}

func NewBudgetItemRepository(db *sql.DB) *BudgetItemRepository {
	return &BudgetItemRepository{db: db}
}

// Upsert inserts the item or overwrites the row already planned for the same
// (request, line item).
func (r *BudgetItemRepository) Upsert(ctx context.Context, tx *sql.Tx, item *domain.BudgetRequestItem) error {
	row := tx.QueryRowContext(ctx,
		`INSERT INTO budget_request_items (
			id, request_id, line_item_id, drug_type, usage_year1, usage_year2,
			usage_year3, estimated_usage, current_stock, unit_price, estimated_purchase,
			requested_qty, requested_amount, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (request_id, line_item_id) DO UPDATE SET
			drug_type = EXCLUDED.drug_type,
			usage_year1 = EXCLUDED.usage_year1,
			usage_year2 = EXCLUDED.usage_year2,
			usage_year3 = EXCLUDED.usage_year3,
			estimated_usage = EXCLUDED.estimated_usage,
			current_stock = EXCLUDED.current_stock,
			unit_price = EXCLUDED.unit_price,
			estimated_purchase = EXCLUDED.estimated_purchase,
			requested_qty = EXCLUDED.requested_qty,
			requested_amount = EXCLUDED.requested_amount,
			updated_at = EXCLUDED.updated_at
		RETURNING id`,
		item.ID, item.RequestID, item.LineItemID, item.DrugType, item.UsageYear1, item.UsageYear2,
		item.UsageYear3, item.EstimatedUsage, item.CurrentStock, item.UnitPrice, item.EstimatedPurchase,
		item.RequestedQty, item.RequestedAmount, item.UpdatedAt,
	)
	if err := row.Scan(&item.ID); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

// Update overwrites the mutable plan fields of an existing item.
func (r *BudgetItemRepository) Update(ctx context.Context, tx *sql.Tx, item *domain.BudgetRequestItem) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE budget_request_items SET
			estimated_usage = $1, current_stock = $2, unit_price = $3,
			estimated_purchase = $4, requested_qty = $5, requested_amount = $6, updated_at = $7
		WHERE id = $8 AND request_id = $9`,
		item.EstimatedUsage, item.CurrentStock, item.UnitPrice,
		item.EstimatedPurchase, item.RequestedQty, item.RequestedAmount, item.UpdatedAt,
		item.ID, item.RequestID,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Update: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Update: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *BudgetItemRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, requestID, itemID uuid.UUID) (*domain.BudgetRequestItem, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+budgetItemColumns+` FROM budget_request_items
		WHERE id = $1 AND request_id = $2 FOR UPDATE`,
		itemID, requestID,
	)
	item, err := scanBudgetItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return item, nil
}

// ListByRequest returns items ordered by line item id. Pass a transaction to
// read inside it, or nil to use the pool.
func (r *BudgetItemRepository) ListByRequest(ctx context.Context, q Querier, requestID uuid.UUID) ([]domain.BudgetRequestItem, error) {
	if q == nil {
		q = r.db
	}
	rows, err := q.QueryContext(ctx,
		`SELECT `+budgetItemColumns+` FROM budget_request_items
		WHERE request_id = $1 ORDER BY line_item_id`, requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByRequest: %w", err)
	}
	items, err := collectBudgetItems(rows)
	if err != nil {
		return nil, fmt.Errorf("ListByRequest: %w", err)
	}
	return items, nil
}

// ListForUpdate locks and returns every item of the request matching filter.
func (r *BudgetItemRepository) ListForUpdate(ctx context.Context, tx *sql.Tx, requestID uuid.UUID, filter ItemFilter) ([]domain.BudgetRequestItem, error) {
	ids := make([]string, len(filter.ItemIDs))
	for i, id := range filter.ItemIDs {
		ids[i] = id.String()
	}
	rows, err := tx.QueryContext(ctx,
		`SELECT `+budgetItemColumns+` FROM budget_request_items
		WHERE request_id = $1
		AND ($2::text = '' OR drug_type = $2::text)
		AND (cardinality($3::uuid[]) = 0 OR id = ANY($3::uuid[]))
		ORDER BY line_item_id
		FOR UPDATE`,
		requestID, filter.DrugType, pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("ListForUpdate: %w", err)
	}
	items, err := collectBudgetItems(rows)
	if err != nil {
		return nil, fmt.Errorf("ListForUpdate: %w", err)
	}
	return items, nil
}

func collectBudgetItems(rows *sql.Rows) ([]domain.BudgetRequestItem, error) {
	defer rows.Close()

	var items []domain.BudgetRequestItem
	for rows.Next() {
		item, err := scanBudgetItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return items, nil
}

func scanBudgetItem(s scanner) (*domain.BudgetRequestItem, error) {
	var i domain.BudgetRequestItem
	err := s.Scan(
		&i.ID, &i.RequestID, &i.LineItemID, &i.DrugType, &i.UsageYear1, &i.UsageYear2,
		&i.UsageYear3, &i.EstimatedUsage, &i.CurrentStock, &i.UnitPrice, &i.EstimatedPurchase,
		&i.RequestedQty, &i.RequestedAmount, &i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}
