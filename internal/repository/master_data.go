package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/josh-kwaku/drug-budget-ledger/internal/domain"
)

type MasterDataRepository struct {
	db *sql.DB
}

func NewMasterDataRepository(db *sql.DB) *MasterDataRepository {
	return &MasterDataRepository{db: db}
}

// UsageHistory returns, for every line item (optionally of one drug type),
// usage in the three fiscal years before fiscalYear and the latest unit price.
// Line items without history come back with zeros.
func (r *MasterDataRepository) UsageHistory(ctx context.Context, fiscalYear int, drugType string) ([]domain.UsageHistory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT li.id, li.drug_type,
			COALESCE(SUM(u.usage_qty) FILTER (WHERE u.fiscal_year = $1 - 3), 0),
			COALESCE(SUM(u.usage_qty) FILTER (WHERE u.fiscal_year = $1 - 2), 0),
			COALESCE(SUM(u.usage_qty) FILTER (WHERE u.fiscal_year = $1 - 1), 0),
			COALESCE((
				SELECT p.unit_price FROM line_item_prices p
				WHERE p.line_item_id = li.id
				ORDER BY p.effective_at DESC LIMIT 1
			), 0)
		FROM line_items li
		LEFT JOIN line_item_usage u
			ON u.line_item_id = li.id AND u.fiscal_year BETWEEN $1 - 3 AND $1 - 1
		WHERE ($2::text = '' OR li.drug_type = $2::text)
		GROUP BY li.id, li.drug_type
		ORDER BY li.id`,
		fiscalYear, drugType,
	)
	if err != nil {
		return nil, fmt.Errorf("UsageHistory: %w", err)
	}
	defer rows.Close()

	var history []domain.UsageHistory
	for rows.Next() {
		var h domain.UsageHistory
		if err := rows.Scan(&h.LineItemID, &h.DrugType, &h.Usage[0], &h.Usage[1], &h.Usage[2], &h.UnitPrice); err != nil {
			return nil, fmt.Errorf("UsageHistory: scan: %w", err)
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("UsageHistory: rows: %w", err)
	}
	return history, nil
}
