package planning

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/drug-budget-ledger/internal/domain"
)

// ItemUpdate carries the fields a planner may overwrite. Nil leaves a field as is.
type ItemUpdate struct {
	EstimatedUsage *int64
	CurrentStock   *int64
	UnitPrice      *int64
}

func (u ItemUpdate) validate() error {
	v := &domain.ValidationError{}
	if u.EstimatedUsage == nil && u.CurrentStock == nil && u.UnitPrice == nil {
		v.Add("item", "at least one field is required")
	}
	if u.EstimatedUsage != nil && *u.EstimatedUsage < 0 {
		v.Add("estimated_usage", "must not be negative")
	}
	if u.CurrentStock != nil && *u.CurrentStock < 0 {
		v.Add("current_stock", "must not be negative")
	}
	if u.UnitPrice != nil && *u.UnitPrice < 0 {
		v.Add("unit_price", "must not be negative")
	}
	return v.OrNil()
}

// UpdateItem overwrites one item and recomputes its derived figures.
func (s *Service) UpdateItem(ctx context.Context, requestID, itemID uuid.UUID, upd ItemUpdate) (*domain.BudgetRequestItem, error) {
	if err := upd.validate(); err != nil {
		return nil, fmt.Errorf("UpdateItem: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("UpdateItem: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.lockEditable(ctx, tx, requestID); err != nil {
		return nil, fmt.Errorf("UpdateItem: %w", err)
	}

	item, err := s.items.GetForUpdate(ctx, tx, requestID, itemID)
	if err != nil {
		return nil, fmt.Errorf("UpdateItem: %w", err)
	}

	if upd.EstimatedUsage != nil {
		item.EstimatedUsage = *upd.EstimatedUsage
	}
	if upd.CurrentStock != nil {
		item.CurrentStock = *upd.CurrentStock
	}
	if upd.UnitPrice != nil {
		item.UnitPrice = *upd.UnitPrice
	}
	item.Recompute()
	item.UpdatedAt = time.Now().UTC()

	if err := s.items.Update(ctx, tx, item); err != nil {
		return nil, fmt.Errorf("UpdateItem: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("UpdateItem: commit: %w", err)
	}
	return item, nil
}
