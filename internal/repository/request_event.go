package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/drug-budget-ledger/internal/domain"
)

const requestEventColumns = `id, request_id, event_type, actor, payload, created_at`

type RequestEventRepository struct {
	db *sql.DB
}

func NewRequestEventRepository(db *sql.DB) *RequestEventRepository {
	return &RequestEventRepository{db: db}
}

func (r *RequestEventRepository) Create(ctx context.Context, tx *sql.Tx, event *domain.BudgetRequestEvent) error {
	// pq sends []byte as bytea, so jsonb gets the text form.
	var payload any
	if len(event.Payload) > 0 {
		payload = string(event.Payload)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO budget_request_events (id, request_id, event_type, actor, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.RequestID, event.EventType, event.Actor, payload, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *RequestEventRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]domain.BudgetRequestEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+requestEventColumns+` FROM budget_request_events
		WHERE request_id = $1 ORDER BY created_at, id`, requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByRequest: %w", err)
	}
	defer rows.Close()

	var events []domain.BudgetRequestEvent
	for rows.Next() {
		var e domain.BudgetRequestEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.RequestID, &e.EventType, &e.Actor, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListByRequest: scan: %w", err)
		}
		e.Payload = payload
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByRequest: rows: %w", err)
	}
	return events, nil
}
