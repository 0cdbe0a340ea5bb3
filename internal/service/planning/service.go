// Package planning builds and edits draft budget requests: usage averaging
// from master data, manual item edits and batch growth adjustments.
package planning

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/drug-budget-ledger/internal/domain"
	"github.com/josh-kwaku/drug-budget-ledger/internal/repository"
)

type requestRepo interface {
	Create(ctx context.Context, tx *sql.Tx, br *domain.BudgetRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.BudgetRequest, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.BudgetRequest, error)
}

type itemRepo interface {
	Upsert(ctx context.Context, tx *sql.Tx, item *domain.BudgetRequestItem) error
	Update(ctx context.Context, tx *sql.Tx, item *domain.BudgetRequestItem) error
	GetForUpdate(ctx context.Context, tx *sql.Tx, requestID, itemID uuid.UUID) (*domain.BudgetRequestItem, error)
	ListByRequest(ctx context.Context, q repository.Querier, requestID uuid.UUID) ([]domain.BudgetRequestItem, error)
	ListForUpdate(ctx context.Context, tx *sql.Tx, requestID uuid.UUID, filter repository.ItemFilter) ([]domain.BudgetRequestItem, error)
}

type eventRepo interface {
	Create(ctx context.Context, tx *sql.Tx, event *domain.BudgetRequestEvent) error
}

type masterDataRepo interface {
	UsageHistory(ctx context.Context, fiscalYear int, drugType string) ([]domain.UsageHistory, error)
}

type Service struct {
	requests requestRepo
	items    itemRepo
	events   eventRepo
	master   masterDataRepo
	db       *sql.DB
}

func NewService(requests requestRepo, items itemRepo, events eventRepo, master masterDataRepo, db *sql.DB) *Service {
	return &Service{
		requests: requests,
		items:    items,
		events:   events,
		master:   master,
		db:       db,
	}
}

// Draft is a request header with its items ordered by line item id.
type Draft struct {
	Request *domain.BudgetRequest
	Items   []domain.BudgetRequestItem
}

func (s *Service) GetRequest(ctx context.Context, id uuid.UUID) (*Draft, error) {
	br, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetRequest: %w", err)
	}
	items, err := s.items.ListByRequest(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("GetRequest: %w", err)
	}
	return &Draft{Request: br, Items: items}, nil
}

// lockEditable locks the request header and fails unless items may change.
// Approval takes the same lock, so edits and approval never interleave.
func (s *Service) lockEditable(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.BudgetRequest, error) {
	br, err := s.requests.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !br.Status.Editable() {
		return nil, fmt.Errorf("request %s is %s: %w", br.ID, br.Status, domain.ErrRequestNotEditable)
	}
	return br, nil
}

func (s *Service) recordEvent(ctx context.Context, tx *sql.Tx, requestID uuid.UUID, eventType domain.RequestEventType, actor string, payload any) error {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
		raw = b
	}
	return s.events.Create(ctx, tx, &domain.BudgetRequestEvent{
		ID:        uuid.New(),
		RequestID: requestID,
		EventType: eventType,
		Actor:     actor,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	})
}
