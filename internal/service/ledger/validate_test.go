package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/drug-budget-ledger/internal/domain"
)

func validReserve() ReserveRequest {
	return ReserveRequest{
		FiscalYear:    2025,
		LineItemID:    "AMOX-500",
		Amount:        50_000,
		Qty:           10,
		ReferenceType: "PO",
		ReferenceID:   "PO-1",
		Actor:         "purchasing:1",
	}
}

func TestValidateReserve(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(r *ReserveRequest)
		wantField string
	}{
		{name: "valid", mutate: func(r *ReserveRequest) {}},
		{name: "qty only", mutate: func(r *ReserveRequest) { r.Amount = 0 }},
		{name: "fiscal year too small", mutate: func(r *ReserveRequest) { r.FiscalYear = 25 }, wantField: "fiscal_year"},
		{name: "missing line item", mutate: func(r *ReserveRequest) { r.LineItemID = "" }, wantField: "line_item_id"},
		{name: "negative amount", mutate: func(r *ReserveRequest) { r.Amount = -1 }, wantField: "amount"},
		{name: "negative qty", mutate: func(r *ReserveRequest) { r.Qty = -1 }, wantField: "qty"},
		{name: "nothing requested", mutate: func(r *ReserveRequest) { r.Amount, r.Qty = 0, 0 }, wantField: "amount"},
		{name: "missing reference type", mutate: func(r *ReserveRequest) { r.ReferenceType = "" }, wantField: "reference_type"},
		{name: "missing reference id", mutate: func(r *ReserveRequest) { r.ReferenceID = "" }, wantField: "reference_id"},
		{name: "missing actor", mutate: func(r *ReserveRequest) { r.Actor = "" }, wantField: "actor"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := validReserve()
			tc.mutate(&req)

			err := validateReserve(req)
			if tc.wantField == "" {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, domain.ErrValidation)
			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tc.wantField, ve.Fields[0].Field)
		})
	}
}

func TestValidateFinalize(t *testing.T) {
	require.NoError(t, validateFinalize(FinalizeRequest{ReferenceType: "PO", ReferenceID: "PO-1", Actor: "a"}))

	err := validateFinalize(FinalizeRequest{})
	require.ErrorIs(t, err, domain.ErrValidation)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Fields, 3)
}

func TestValidationRunsBeforeStorage(t *testing.T) {
	// A nil db proves no connection is touched for malformed input.
	svc := &Service{}
	ctx := context.Background()

	_, err := svc.Reserve(ctx, ReserveRequest{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Commit(ctx, FinalizeRequest{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Check(ctx, CheckRequest{FiscalYear: 2025})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestOutcomeLabel(t *testing.T) {
	tests := []struct {
		name string
		res  *domain.LedgerResult
		err  error
		want string
	}{
		{name: "reserved", res: &domain.LedgerResult{Outcome: domain.OutcomeReserved}, want: "RESERVED"},
		{name: "replayed", res: &domain.LedgerResult{Outcome: domain.OutcomeReserved, Replayed: true}, want: "REPLAYED"},
		{name: "already finalized", res: &domain.LedgerResult{Outcome: domain.OutcomeAlreadyFinalized}, want: "ALREADY_FINALIZED"},
		{name: "insufficient", err: &domain.InsufficientBudgetError{}, want: "INSUFFICIENT_BUDGET"},
		{name: "retry", err: domain.ErrRetryLater, want: "RETRY_LATER"},
		{name: "locked", err: domain.ErrAccountLocked, want: "ACCOUNT_LOCKED"},
		{name: "canceled", err: context.Canceled, want: "CANCELED"},
		{name: "other", err: errors.New("boom"), want: "ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, outcomeLabel(tc.res, tc.err))
		})
	}
}
