// Package approval moves budget requests through their workflow and turns an
// approved request into ledger accounts.
package approval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/drug-budget-ledger/internal/domain"
	"github.com/josh-kwaku/drug-budget-ledger/internal/logging"
	"github.com/josh-kwaku/drug-budget-ledger/internal/repository"
)

type requestRepo interface {
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.BudgetRequest, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, br *domain.BudgetRequest) error
}

type itemRepo interface {
	ListByRequest(ctx context.Context, q repository.Querier, requestID uuid.UUID) ([]domain.BudgetRequestItem, error)
}

type eventRepo interface {
	Create(ctx context.Context, tx *sql.Tx, event *domain.BudgetRequestEvent) error
}

type accountRepo interface {
	MergeApproved(ctx context.Context, tx *sql.Tx, fiscalYear int, lineItemID string, budget, qty int64) (*domain.LedgerAccount, error)
}

type Coordinator struct {
	requests    requestRepo
	items       itemRepo
	events      eventRepo
	accounts    accountRepo
	db          *sql.DB
	lockTimeout time.Duration
}

func NewCoordinator(requests requestRepo, items itemRepo, events eventRepo, accounts accountRepo, db *sql.DB, lockTimeout time.Duration) *Coordinator {
	return &Coordinator{
		requests:    requests,
		items:       items,
		events:      events,
		accounts:    accounts,
		db:          db,
		lockTimeout: lockTimeout,
	}
}

type ApprovalResult struct {
	Request *domain.BudgetRequest
	// AlreadyApproved is set when the request was approved earlier and
	// nothing was written.
	AlreadyApproved bool
	Accounts        []domain.LedgerAccount
}

func (c *Coordinator) Submit(ctx context.Context, id uuid.UUID, actor string) (*domain.BudgetRequest, error) {
	br, err := c.simpleTransition(ctx, id, domain.ActionSubmit, actor, func(br *domain.BudgetRequest, now time.Time) {
		br.SubmittedAt = &now
		br.RejectionReason = nil
	}, domain.RequestEventSubmitted, nil)
	if err != nil {
		return nil, fmt.Errorf("Submit: %w", err)
	}
	return br, nil
}

// Reject sends a submitted request back to DRAFT so it can be corrected.
func (c *Coordinator) Reject(ctx context.Context, id uuid.UUID, actor, reason string) (*domain.BudgetRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("Reject: %w", (&domain.ValidationError{}).Add("reason", "is required"))
	}

	br, err := c.simpleTransition(ctx, id, domain.ActionReject, actor, func(br *domain.BudgetRequest, _ time.Time) {
		br.RejectionReason = &reason
		br.SubmittedAt = nil
	}, domain.RequestEventRejected, map[string]string{"reason": reason})
	if err != nil {
		return nil, fmt.Errorf("Reject: %w", err)
	}
	return br, nil
}

// Reopen returns a request left in REJECTED to DRAFT.
func (c *Coordinator) Reopen(ctx context.Context, id uuid.UUID, actor string) (*domain.BudgetRequest, error) {
	br, err := c.simpleTransition(ctx, id, domain.ActionReopen, actor, func(*domain.BudgetRequest, time.Time) {},
		domain.RequestEventReopened, nil)
	if err != nil {
		return nil, fmt.Errorf("Reopen: %w", err)
	}
	return br, nil
}

func (c *Coordinator) simpleTransition(
	ctx context.Context,
	id uuid.UUID,
	action domain.RequestAction,
	actor string,
	mutate func(br *domain.BudgetRequest, now time.Time),
	eventType domain.RequestEventType,
	payload any,
) (*domain.BudgetRequest, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	br, err := c.requests.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	from := br.Status
	if err := c.advance(ctx, tx, br, action, actor, mutate, eventType, payload); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	logging.FromContext(ctx).Info("budget request status changed",
		"request_id", br.ID,
		"from", from,
		"to", br.Status,
		"actor", actor,
	)
	return br, nil
}

// advance applies one allowed transition to the locked header and records it.
func (c *Coordinator) advance(
	ctx context.Context,
	tx *sql.Tx,
	br *domain.BudgetRequest,
	action domain.RequestAction,
	actor string,
	mutate func(br *domain.BudgetRequest, now time.Time),
	eventType domain.RequestEventType,
	payload any,
) error {
	next, err := br.Status.Next(action)
	if err != nil {
		return fmt.Errorf("%s request in %s: %w", action, br.Status, err)
	}

	now := time.Now().UTC()
	br.Status = next
	mutate(br, now)
	if err := c.requests.UpdateStatus(ctx, tx, br); err != nil {
		return err
	}

	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
		raw = b
	}
	return c.events.Create(ctx, tx, &domain.BudgetRequestEvent{
		ID:        uuid.New(),
		RequestID: br.ID,
		EventType: eventType,
		Actor:     actor,
		Payload:   raw,
		CreatedAt: now,
	})
}

// Approve marks a submitted request APPROVED and, in the same transaction,
// adds every non-empty item to its (fiscal year, line item) account. Accounts
// are touched in ascending line item order. Approving an approved request is
// a no-op.
func (c *Coordinator) Approve(ctx context.Context, id uuid.UUID, actor string) (*ApprovalResult, error) {
	log := logging.FromContext(ctx).With("request_id", id, "actor", actor)

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Approve: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := repository.SetLockTimeout(ctx, tx, c.lockTimeout); err != nil {
		return nil, fmt.Errorf("Approve: %w", repository.Classify(ctx, err))
	}

	br, err := c.requests.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("Approve: %w", repository.Classify(ctx, err))
	}
	if br.Status == domain.RequestStatusApproved {
		log.Info("request already approved")
		return &ApprovalResult{Request: br, AlreadyApproved: true}, nil
	}
	if _, err := br.Status.Next(domain.ActionApprove); err != nil {
		return nil, fmt.Errorf("Approve: request in %s: %w", br.Status, err)
	}

	items, err := c.items.ListByRequest(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("Approve: %w", repository.Classify(ctx, err))
	}

	var accounts []domain.LedgerAccount
	var totalBudget, totalQty int64
	// Zero-valued items still get an account so purchasing sees an exhausted
	// line rather than a missing one.
	for _, item := range items {
		acct, err := c.accounts.MergeApproved(ctx, tx, br.FiscalYear, item.LineItemID, item.RequestedAmount, item.RequestedQty)
		if err != nil {
			return nil, fmt.Errorf("Approve: line item %s: %w", item.LineItemID, repository.Classify(ctx, err))
		}
		accounts = append(accounts, *acct)
		totalBudget += item.RequestedAmount
		totalQty += item.RequestedQty
	}

	err = c.advance(ctx, tx, br, domain.ActionApprove, actor, func(br *domain.BudgetRequest, now time.Time) {
		br.ApprovedBy = &actor
		br.ApprovedAt = &now
	}, domain.RequestEventApproved, map[string]int64{
		"accounts":     int64(len(accounts)),
		"total_budget": totalBudget,
		"total_qty":    totalQty,
	})
	if err != nil {
		return nil, fmt.Errorf("Approve: %w", repository.Classify(ctx, err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Approve: commit: %w", repository.Classify(ctx, err))
	}

	log.Info("request approved",
		"fiscal_year", br.FiscalYear,
		"accounts", len(accounts),
		"total_budget", totalBudget,
		"total_qty", totalQty,
	)
	return &ApprovalResult{Request: br, Accounts: accounts}, nil
}
