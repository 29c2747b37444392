package models

// SplitPolicy selects how an expense amount is divided among participants.
type SplitPolicy string

const (
	SplitEqual      SplitPolicy = "equal"
	SplitExact      SplitPolicy = "exact"
	SplitPercentage SplitPolicy = "percentage"
)

// Valid reports whether p is a known policy.
func (p SplitPolicy) Valid() bool {
	switch p {
	case SplitEqual, SplitExact, SplitPercentage:
		return true
	}
	return false
}

// Expense is an amount fronted by one member on behalf of a group.
type Expense struct {
	ID          string
	GroupID     string
	PayerID     string
	Title       string
	Description string

	// Amount is the total in minor units. Always positive.
	Amount int64

	Policy SplitPolicy

	// Splits always sum (by Share) to Amount exactly.
	Splits []ExpenseSplit

	CreatedAt int64
	UpdatedAt int64

	// DeletedAt is set when the expense is soft-deleted. Deleted expenses are
	// ignored by balance computation.
	DeletedAt int64
}

// ExpenseSplit is one member's portion of an expense.
type ExpenseSplit struct {
	ExpenseID string
	MemberID  string

	// Share is the member's portion of the expense amount.
	Share int64

	// Owed is what the member owes the payer: Share for everyone except the
	// payer, whose Owed is always 0.
	Owed int64

	// Settled flips to true once a wallet transfer or an approved external
	// payment clears the debt.
	Settled bool
}

// OpenSplit is an unsettled split joined with its expense, as read by the
// balance aggregator.
type OpenSplit struct {
	ExpenseID string
	GroupID   string
	PayerID   string
	MemberID  string
	Owed      int64
}
