package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/drug-budget-ledger/internal/domain"
)

const TestPassword = "password123"

func SeedUser(t *testing.T, db *sql.DB, email string, role domain.Role) *domain.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	u := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         email,
		PasswordHash: string(hash),
		Role:         role,
		Status:       domain.UserStatusActive,
		CreatedAt:    time.Now().UTC(),
	}
	_, err = db.Exec(
		`INSERT INTO users (id, email, name, password_hash, role, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Role, u.Status, u.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	return u
}

// SeedLineItem inserts a line item with up to three years of usage ending at
// fiscalYear-1 (oldest first) and a single current price. A negative usage
// value leaves that year without a row.
func SeedLineItem(t *testing.T, db *sql.DB, id, drugType string, fiscalYear int, usage [3]int64, unitPrice int64) {
	t.Helper()

	_, err := db.Exec(
		`INSERT INTO line_items (id, code, name, drug_type) VALUES ($1, $2, $3, $4)`,
		id, id, "Drug "+id, drugType,
	)
	if err != nil {
		t.Fatalf("seed line item %s: %v", id, err)
	}

	for i, qty := range usage {
		if qty < 0 {
			continue
		}
		_, err := db.Exec(
			`INSERT INTO line_item_usage (line_item_id, fiscal_year, usage_qty) VALUES ($1, $2, $3)`,
			id, fiscalYear-3+i, qty,
		)
		if err != nil {
			t.Fatalf("seed usage %s: %v", id, err)
		}
	}

	if unitPrice >= 0 {
		_, err = db.Exec(
			`INSERT INTO line_item_prices (line_item_id, unit_price, effective_at) VALUES ($1, $2, $3)`,
			id, unitPrice, time.Now().UTC().Add(-time.Hour),
		)
		if err != nil {
			t.Fatalf("seed price %s: %v", id, err)
		}
	}
}

func SeedAccount(t *testing.T, db *sql.DB, fiscalYear int, lineItemID string, approvedBudget, approvedQty int64) *domain.LedgerAccount {
	t.Helper()

	now := time.Now().UTC()
	a := &domain.LedgerAccount{
		ID:             uuid.New(),
		FiscalYear:     fiscalYear,
		LineItemID:     lineItemID,
		ApprovedBudget: approvedBudget,
		ApprovedQty:    approvedQty,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err := db.Exec(
		`INSERT INTO ledger_accounts (id, fiscal_year, line_item_id, approved_budget, approved_qty, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 1, $6, $6)`,
		a.ID, a.FiscalYear, a.LineItemID, a.ApprovedBudget, a.ApprovedQty, now,
	)
	if err != nil {
		t.Fatalf("seed account %d/%s: %v", fiscalYear, lineItemID, err)
	}
	return a
}

// CorruptAccount overwrites stored balances behind the ledger's back so drift
// detection has something to find.
func CorruptAccount(t *testing.T, db *sql.DB, accountID uuid.UUID, usedBudget, reservedBudget int64) {
	t.Helper()

	_, err := db.Exec(
		`UPDATE ledger_accounts SET used_budget = $1, reserved_budget = $2, version = version + 1 WHERE id = $3`,
		usedBudget, reservedBudget, accountID,
	)
	if err != nil {
		t.Fatalf("corrupt account: %v", err)
	}
}
