package domain

import (
	"time"

	"github.com/google/uuid"
)

type LedgerAccount struct {
	ID             uuid.UUID
	FiscalYear     int
	LineItemID     string
	ApprovedBudget int64
	ApprovedQty    int64
	UsedBudget     int64
	UsedQty        int64
	ReservedBudget int64
	ReservedQty    int64
	IsLocked       bool
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (a *LedgerAccount) RemainingBudget() int64 {
	return a.ApprovedBudget - a.UsedBudget - a.ReservedBudget
}

func (a *LedgerAccount) RemainingQty() int64 {
	return a.ApprovedQty - a.UsedQty - a.ReservedQty
}

// CanAfford uses an inclusive boundary: asking for exactly what remains succeeds.
func (a *LedgerAccount) CanAfford(amount, qty int64) bool {
	return a.RemainingBudget() >= amount && a.RemainingQty() >= qty
}

// Balanced reports whether approved figures still cover used plus reserved.
func (a *LedgerAccount) Balanced() bool {
	return a.UsedBudget >= 0 && a.UsedQty >= 0 &&
		a.ReservedBudget >= 0 && a.ReservedQty >= 0 &&
		a.ApprovedBudget >= a.UsedBudget+a.ReservedBudget &&
		a.ApprovedQty >= a.UsedQty+a.ReservedQty
}

// AccountKey identifies a ledger account.
type AccountKey struct {
	FiscalYear int
	LineItemID string
}
