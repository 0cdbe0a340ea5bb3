package domain

// LineItem is a purchasable drug from master data. This service only reads it.
type LineItem struct {
	ID       string
	Code     string
	Name     string
	DrugType string
}

// UsageHistory holds the three fiscal years before the plan year, oldest first,
// plus the latest known unit price. Missing data is zero.
type UsageHistory struct {
	LineItemID string
	DrugType   string
	Usage      [3]int64
	UnitPrice  int64
}
