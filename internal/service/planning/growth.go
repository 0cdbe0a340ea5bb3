package planning

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/drug-budget-ledger/internal/domain"
	"github.com/josh-kwaku/drug-budget-ledger/internal/logging"
	"github.com/josh-kwaku/drug-budget-ledger/internal/repository"
)

type GrowthTarget string

const (
	GrowthTargetQuantity GrowthTarget = "quantity"
	GrowthTargetPrice    GrowthTarget = "price"
	GrowthTargetBoth     GrowthTarget = "both"
)

func (t GrowthTarget) IsValid() bool {
	switch t {
	case GrowthTargetQuantity, GrowthTargetPrice, GrowthTargetBoth:
		return true
	}
	return false
}

var (
	hundred    = decimal.NewFromInt(100)
	minPercent = decimal.NewFromInt(-100)
	maxPercent = decimal.NewFromInt(100)
)

type GrowthRequest struct {
	Percent  decimal.Decimal
	DrugType string
	ItemIDs  []uuid.UUID
	// Target defaults to quantity.
	Target GrowthTarget
	Actor  string
}

type GrowthResult struct {
	Updated int
	Items   []domain.BudgetRequestItem
}

// Grow applies a percentage change to v: round(v * (1 + pct/100)), halves
// away from zero.
func Grow(v int64, pct decimal.Decimal) int64 {
	return decimal.NewFromInt(v).Mul(hundred.Add(pct)).Div(hundred).Round(0).IntPart()
}

// ApplyGrowth adjusts every matching item of the request in one transaction.
// Either all matched rows change or none do.
func (s *Service) ApplyGrowth(ctx context.Context, requestID uuid.UUID, req GrowthRequest) (*GrowthResult, error) {
	if req.Target == "" {
		req.Target = GrowthTargetQuantity
	}
	if err := validateGrowth(req); err != nil {
		return nil, fmt.Errorf("ApplyGrowth: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ApplyGrowth: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.lockEditable(ctx, tx, requestID); err != nil {
		return nil, fmt.Errorf("ApplyGrowth: %w", err)
	}

	items, err := s.items.ListForUpdate(ctx, tx, requestID, repository.ItemFilter{
		DrugType: req.DrugType,
		ItemIDs:  req.ItemIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("ApplyGrowth: %w", err)
	}
	if len(items) == 0 {
		return &GrowthResult{}, nil
	}

	now := time.Now().UTC()
	for i := range items {
		item := &items[i]
		if req.Target != GrowthTargetPrice {
			item.EstimatedUsage = Grow(item.EstimatedUsage, req.Percent)
		}
		if req.Target != GrowthTargetQuantity {
			item.UnitPrice = Grow(item.UnitPrice, req.Percent)
		}
		item.Recompute()
		item.UpdatedAt = now
		if err := s.items.Update(ctx, tx, item); err != nil {
			return nil, fmt.Errorf("ApplyGrowth: item %s: %w", item.ID, err)
		}
	}

	if err := s.recordEvent(ctx, tx, requestID, domain.RequestEventAdjusted, req.Actor, map[string]any{
		"percent":   req.Percent.String(),
		"target":    req.Target,
		"drug_type": req.DrugType,
		"updated":   len(items),
	}); err != nil {
		return nil, fmt.Errorf("ApplyGrowth: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ApplyGrowth: commit: %w", err)
	}

	logging.FromContext(ctx).Info("growth applied",
		"request_id", requestID,
		"percent", req.Percent.String(),
		"target", req.Target,
		"updated", len(items),
	)
	return &GrowthResult{Updated: len(items), Items: items}, nil
}

func validateGrowth(req GrowthRequest) error {
	v := &domain.ValidationError{}
	if req.Percent.LessThan(minPercent) || req.Percent.GreaterThan(maxPercent) {
		v.Add("percent", "must be between -100 and 100")
	}
	if !req.Target.IsValid() {
		v.Add("target", "must be quantity, price or both")
	}
	if req.Actor == "" {
		v.Add("actor", "is required")
	}
	return v.OrNil()
}
