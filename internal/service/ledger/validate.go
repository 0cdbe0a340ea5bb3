package ledger

import "github.com/josh-kwaku/drug-budget-ledger/internal/domain"

const maxReferenceLen = 128

func requireAccountKey(v *domain.ValidationError, fiscalYear int, lineItemID string) {
	if fiscalYear < 2000 || fiscalYear > 9999 {
		v.Add("fiscal_year", "must be a four digit year from 2000")
	}
	if lineItemID == "" {
		v.Add("line_item_id", "is required")
	}
}

func requireAmounts(v *domain.ValidationError, amount, qty int64) {
	if amount < 0 {
		v.Add("amount", "must not be negative")
	}
	if qty < 0 {
		v.Add("qty", "must not be negative")
	}
}

func requireReference(v *domain.ValidationError, referenceType, referenceID string) {
	switch {
	case referenceType == "":
		v.Add("reference_type", "is required")
	case len(referenceType) > maxReferenceLen:
		v.Add("reference_type", "is too long")
	}
	switch {
	case referenceID == "":
		v.Add("reference_id", "is required")
	case len(referenceID) > maxReferenceLen:
		v.Add("reference_id", "is too long")
	}
}

func validateCheck(req CheckRequest) error {
	v := &domain.ValidationError{}
	requireAccountKey(v, req.FiscalYear, req.LineItemID)
	requireAmounts(v, req.Amount, req.Qty)
	return v.OrNil()
}

func validateReserve(req ReserveRequest) error {
	v := &domain.ValidationError{}
	requireAccountKey(v, req.FiscalYear, req.LineItemID)
	requireAmounts(v, req.Amount, req.Qty)
	if req.Amount == 0 && req.Qty == 0 {
		v.Add("amount", "amount or qty must be positive")
	}
	requireReference(v, req.ReferenceType, req.ReferenceID)
	if req.Actor == "" {
		v.Add("actor", "is required")
	}
	return v.OrNil()
}

func validateFinalize(req FinalizeRequest) error {
	v := &domain.ValidationError{}
	requireReference(v, req.ReferenceType, req.ReferenceID)
	if req.Actor == "" {
		v.Add("actor", "is required")
	}
	return v.OrNil()
}
