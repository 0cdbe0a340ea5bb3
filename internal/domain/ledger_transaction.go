package domain

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionTypeReserve TransactionType = "RESERVE"
	TransactionTypeCommit  TransactionType = "COMMIT"
	TransactionTypeRelease TransactionType = "RELEASE"
)

func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeReserve, TransactionTypeCommit, TransactionTypeRelease:
		return true
	}
	return false
}

// LedgerTransaction is one immutable row of the transaction log. COMMIT and
// RELEASE rows point at the RESERVE they finalize through ReserveID.
type LedgerTransaction struct {
	ID            uuid.UUID
	AccountID     uuid.UUID
	Type          TransactionType
	Amount        int64
	Qty           int64
	ReferenceType string
	ReferenceID   string
	ReserveID     *uuid.UUID
	Actor         string
	CreatedAt     time.Time
}

type Outcome string

const (
	OutcomeReserved         Outcome = "RESERVED"
	OutcomeCommitted        Outcome = "COMMITTED"
	OutcomeReleased         Outcome = "RELEASED"
	OutcomeAlreadyFinalized Outcome = "ALREADY_FINALIZED"
)

// LedgerResult is what a successful reserve, commit or release returns.
// Replayed is set when a retried reserve found its original open reservation.
type LedgerResult struct {
	Outcome      Outcome
	Replayed     bool
	Accounts     []LedgerAccount
	Transactions []LedgerTransaction
}

type CheckResult struct {
	CanProceed      bool
	RemainingBudget int64
	RemainingQty    int64
}

// ReplayedBalance is an account's used and reserved figures rebuilt from the log.
type ReplayedBalance struct {
	UsedBudget     int64
	UsedQty        int64
	ReservedBudget int64
	ReservedQty    int64
}

// Apply folds one log row into the running balance.
func (b *ReplayedBalance) Apply(t LedgerTransaction) {
	switch t.Type {
	case TransactionTypeReserve:
		b.ReservedBudget += t.Amount
		b.ReservedQty += t.Qty
	case TransactionTypeCommit:
		b.ReservedBudget -= t.Amount
		b.ReservedQty -= t.Qty
		b.UsedBudget += t.Amount
		b.UsedQty += t.Qty
	case TransactionTypeRelease:
		b.ReservedBudget -= t.Amount
		b.ReservedQty -= t.Qty
	}
}

func (b ReplayedBalance) Matches(a *LedgerAccount) bool {
	return b.UsedBudget == a.UsedBudget && b.UsedQty == a.UsedQty &&
		b.ReservedBudget == a.ReservedBudget && b.ReservedQty == a.ReservedQty
}

// Drift describes an account whose stored balance differs from its replay.
type Drift struct {
	Account  LedgerAccount
	Replayed ReplayedBalance
}
