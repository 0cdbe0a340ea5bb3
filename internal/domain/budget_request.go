package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type RequestStatus string

const (
	RequestStatusDraft     RequestStatus = "DRAFT"
	RequestStatusSubmitted RequestStatus = "SUBMITTED"
	RequestStatusApproved  RequestStatus = "APPROVED"
	RequestStatusRejected  RequestStatus = "REJECTED"
)

type RequestAction string

const (
	ActionSubmit  RequestAction = "submit"
	ActionApprove RequestAction = "approve"
	ActionReject  RequestAction = "reject"
	ActionReopen  RequestAction = "reopen"
)

type transition struct {
	from   RequestStatus
	action RequestAction
}

// Every status change must appear here. REJECTED is only a source state for
// rows that were rejected before reject started returning requests to DRAFT.
var requestTransitions = map[transition]RequestStatus{
	{RequestStatusDraft, ActionSubmit}:      RequestStatusSubmitted,
	{RequestStatusSubmitted, ActionApprove}: RequestStatusApproved,
	{RequestStatusSubmitted, ActionReject}:  RequestStatusDraft,
	{RequestStatusRejected, ActionReopen}:   RequestStatusDraft,
}

// Next returns the status reached by applying action, or ErrInvalidTransition.
func (s RequestStatus) Next(action RequestAction) (RequestStatus, error) {
	next, ok := requestTransitions[transition{s, action}]
	if !ok {
		return "", ErrInvalidTransition
	}
	return next, nil
}

// Editable reports whether item rows may still change.
func (s RequestStatus) Editable() bool {
	return s == RequestStatusDraft || s == RequestStatusSubmitted
}

func (s RequestStatus) IsValid() bool {
	switch s {
	case RequestStatusDraft, RequestStatusSubmitted, RequestStatusApproved, RequestStatusRejected:
		return true
	}
	return false
}

type BudgetRequest struct {
	ID              uuid.UUID
	FiscalYear      int
	Status          RequestStatus
	CreatedBy       string
	SubmittedAt     *time.Time
	ApprovedBy      *string
	ApprovedAt      *time.Time
	RejectionReason *string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type BudgetRequestItem struct {
	ID                uuid.UUID
	RequestID         uuid.UUID
	LineItemID        string
	DrugType          string
	UsageYear1        int64
	UsageYear2        int64
	UsageYear3        int64
	EstimatedUsage    int64
	CurrentStock      int64
	UnitPrice         int64
	EstimatedPurchase int64
	RequestedQty      int64
	RequestedAmount   int64
	UpdatedAt         time.Time
}

// Recompute refreshes the fields derived from usage, stock and price.
func (i *BudgetRequestItem) Recompute() {
	i.RequestedQty = max(i.EstimatedUsage-i.CurrentStock, 0)
	i.EstimatedPurchase = i.EstimatedUsage * i.UnitPrice
	i.RequestedAmount = i.RequestedQty * i.UnitPrice
}

type RequestEventType string

const (
	RequestEventCreated   RequestEventType = "created"
	RequestEventSubmitted RequestEventType = "submitted"
	RequestEventApproved  RequestEventType = "approved"
	RequestEventRejected  RequestEventType = "rejected"
	RequestEventReopened  RequestEventType = "reopened"
	RequestEventAdjusted  RequestEventType = "adjusted"
)

type BudgetRequestEvent struct {
	ID        uuid.UUID
	RequestID uuid.UUID
	EventType RequestEventType
	Actor     string
	Payload   json.RawMessage
	CreatedAt time.Time
}
