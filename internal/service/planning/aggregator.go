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

type DraftRequest struct {
	FiscalYear int
	DrugType   string
	// RequestID regenerates an existing request when set.
	RequestID *uuid.UUID
	Actor     string
}

// EstimateUsage averages three years of usage. Missing years count as zero
// and halves round away from zero.
func EstimateUsage(usage [3]int64) int64 {
	sum := decimal.NewFromInt(usage[0] + usage[1] + usage[2])
	return sum.Div(decimal.NewFromInt(3)).Round(0).IntPart()
}

// GenerateDraft fills a request with one item per line item, estimating usage
// from the three fiscal years before the plan year. Regenerating keeps the
// current stock already entered on existing items.
func (s *Service) GenerateDraft(ctx context.Context, req DraftRequest) (*Draft, error) {
	if err := validateDraft(req); err != nil {
		return nil, fmt.Errorf("GenerateDraft: %w", err)
	}

	history, err := s.master.UsageHistory(ctx, req.FiscalYear, req.DrugType)
	if err != nil {
		return nil, fmt.Errorf("GenerateDraft: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("GenerateDraft: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var br *domain.BudgetRequest
	if req.RequestID == nil {
		br = &domain.BudgetRequest{
			ID:         uuid.New(),
			FiscalYear: req.FiscalYear,
			Status:     domain.RequestStatusDraft,
			CreatedBy:  req.Actor,
			Version:    1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.requests.Create(ctx, tx, br); err != nil {
			return nil, fmt.Errorf("GenerateDraft: %w", err)
		}
		if err := s.recordEvent(ctx, tx, br.ID, domain.RequestEventCreated, req.Actor, map[string]any{
			"fiscal_year": req.FiscalYear,
			"drug_type":   req.DrugType,
		}); err != nil {
			return nil, fmt.Errorf("GenerateDraft: %w", err)
		}
	} else {
		br, err = s.lockEditable(ctx, tx, *req.RequestID)
		if err != nil {
			return nil, fmt.Errorf("GenerateDraft: %w", err)
		}
		if br.FiscalYear != req.FiscalYear {
			return nil, fmt.Errorf("GenerateDraft: %w",
				(&domain.ValidationError{}).Add("fiscal_year", fmt.Sprintf("request %s plans fiscal year %d", br.ID, br.FiscalYear)))
		}
	}

	existing, err := s.items.ListForUpdate(ctx, tx, br.ID, repository.ItemFilter{DrugType: req.DrugType})
	if err != nil {
		return nil, fmt.Errorf("GenerateDraft: %w", err)
	}
	stock := make(map[string]int64, len(existing))
	for _, it := range existing {
		stock[it.LineItemID] = it.CurrentStock
	}

	for _, h := range history {
		item := &domain.BudgetRequestItem{
			ID:             uuid.New(),
			RequestID:      br.ID,
			LineItemID:     h.LineItemID,
			DrugType:       h.DrugType,
			UsageYear1:     h.Usage[0],
			UsageYear2:     h.Usage[1],
			UsageYear3:     h.Usage[2],
			EstimatedUsage: EstimateUsage(h.Usage),
			CurrentStock:   stock[h.LineItemID],
			UnitPrice:      h.UnitPrice,
			UpdatedAt:      now,
		}
		item.Recompute()
		if err := s.items.Upsert(ctx, tx, item); err != nil {
			return nil, fmt.Errorf("GenerateDraft: line item %s: %w", h.LineItemID, err)
		}
	}

	if req.RequestID != nil {
		if err := s.recordEvent(ctx, tx, br.ID, domain.RequestEventAdjusted, req.Actor, map[string]any{
			"regenerated": len(history),
			"drug_type":   req.DrugType,
		}); err != nil {
			return nil, fmt.Errorf("GenerateDraft: %w", err)
		}
	}

	items, err := s.items.ListByRequest(ctx, tx, br.ID)
	if err != nil {
		return nil, fmt.Errorf("GenerateDraft: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("GenerateDraft: commit: %w", err)
	}

	logging.FromContext(ctx).Info("draft generated",
		"request_id", br.ID,
		"fiscal_year", br.FiscalYear,
		"drug_type", req.DrugType,
		"line_items", len(history),
	)
	return &Draft{Request: br, Items: items}, nil
}

func validateDraft(req DraftRequest) error {
	v := &domain.ValidationError{}
	if req.FiscalYear < 2000 || req.FiscalYear > 9999 {
		v.Add("fiscal_year", "must be a four digit year from 2000")
	}
	if req.Actor == "" {
		v.Add("actor", "is required")
	}
	return v.OrNil()
}
