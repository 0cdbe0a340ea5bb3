package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestStatus_Next(t *testing.T) {
	tests := []struct {
		name    string
		from    RequestStatus
		action  RequestAction
		want    RequestStatus
		wantErr bool
	}{
		{name: "submit draft", from: RequestStatusDraft, action: ActionSubmit, want: RequestStatusSubmitted},
		{name: "approve submitted", from: RequestStatusSubmitted, action: ActionApprove, want: RequestStatusApproved},
		{name: "reject submitted returns to draft", from: RequestStatusSubmitted, action: ActionReject, want: RequestStatusDraft},
		{name: "reopen legacy rejected", from: RequestStatusRejected, action: ActionReopen, want: RequestStatusDraft},
		{name: "approve draft", from: RequestStatusDraft, action: ActionApprove, wantErr: true},
		{name: "submit submitted", from: RequestStatusSubmitted, action: ActionSubmit, wantErr: true},
		{name: "reject approved", from: RequestStatusApproved, action: ActionReject, wantErr: true},
		{name: "approve approved", from: RequestStatusApproved, action: ActionApprove, wantErr: true},
		{name: "reopen draft", from: RequestStatusDraft, action: ActionReopen, wantErr: true},
		{name: "unknown action", from: RequestStatusDraft, action: RequestAction("archive"), wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.from.Next(tc.action)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidTransition)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRequestStatus_Editable(t *testing.T) {
	assert.True(t, RequestStatusDraft.Editable())
	assert.True(t, RequestStatusSubmitted.Editable())
	assert.False(t, RequestStatusApproved.Editable())
	assert.False(t, RequestStatusRejected.Editable())
}

func TestBudgetRequestItem_Recompute(t *testing.T) {
	item := BudgetRequestItem{EstimatedUsage: 120, CurrentStock: 20, UnitPrice: 350}
	item.Recompute()

	assert.Equal(t, int64(100), item.RequestedQty)
	assert.Equal(t, int64(42000), item.EstimatedPurchase)
	assert.Equal(t, int64(35000), item.RequestedAmount)

	item.CurrentStock = 500
	item.Recompute()
	assert.Equal(t, int64(0), item.RequestedQty, "stock above usage requests nothing")
	assert.Equal(t, int64(0), item.RequestedAmount)
}

func TestLedgerAccount_CanAfford_InclusiveBoundary(t *testing.T) {
	a := &LedgerAccount{
		ApprovedBudget: 2_000_000, UsedBudget: 1_800_000, ReservedBudget: 150_000,
		ApprovedQty: 100, UsedQty: 10, ReservedQty: 10,
	}

	assert.Equal(t, int64(50_000), a.RemainingBudget())
	assert.Equal(t, int64(80), a.RemainingQty())
	assert.True(t, a.CanAfford(50_000, 80))
	assert.False(t, a.CanAfford(50_001, 1))
	assert.False(t, a.CanAfford(1, 81))
	assert.True(t, a.Balanced())
}

func TestReplayedBalance_Apply(t *testing.T) {
	var b ReplayedBalance
	b.Apply(LedgerTransaction{Type: TransactionTypeReserve, Amount: 500, Qty: 5})
	b.Apply(LedgerTransaction{Type: TransactionTypeReserve, Amount: 300, Qty: 3})
	b.Apply(LedgerTransaction{Type: TransactionTypeCommit, Amount: 500, Qty: 5})
	b.Apply(LedgerTransaction{Type: TransactionTypeRelease, Amount: 300, Qty: 3})

	assert.Equal(t, ReplayedBalance{UsedBudget: 500, UsedQty: 5}, b)
	assert.True(t, b.Matches(&LedgerAccount{UsedBudget: 500, UsedQty: 5}))
	assert.False(t, b.Matches(&LedgerAccount{UsedBudget: 500, UsedQty: 5, ReservedBudget: 1}))
}

func TestInsufficientBudgetError_Is(t *testing.T) {
	err := fmt.Errorf("Reserve: %w", &InsufficientBudgetError{RequiredBudget: 50_001, AvailableBudget: 50_000})

	require.ErrorIs(t, err, ErrInsufficientBudget)

	var ib *InsufficientBudgetError
	require.True(t, errors.As(err, &ib))
	assert.Equal(t, int64(50_001), ib.RequiredBudget)
	assert.Equal(t, int64(50_000), ib.AvailableBudget)
}

func TestValidationError(t *testing.T) {
	v := &ValidationError{}
	assert.NoError(t, v.OrNil())

	v.Add("amount", "must not be negative").Add("reference_id", "required")
	err := v.OrNil()
	require.ErrorIs(t, err, ErrValidation)
	assert.Len(t, v.Fields, 2)
	assert.Contains(t, err.Error(), "amount")
}
