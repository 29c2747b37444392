package models

// TransactionStatus is the lifecycle state of a wallet transaction.
type TransactionStatus string

const (
	TxPending TransactionStatus = "pending"
	TxSuccess TransactionStatus = "success"
	TxFailed  TransactionStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s TransactionStatus) Terminal() bool {
	return s == TxSuccess || s == TxFailed
}

// TransactionKind distinguishes member-to-member transfers from wallet top-ups.
type TransactionKind string

const (
	KindTransfer TransactionKind = "transfer"
	KindDeposit  TransactionKind = "deposit"
)

// WalletTransaction records one attempt to move wallet money.
// Rows are created once, move forward to a terminal status and are never deleted.
type WalletTransaction struct {
	ID   string
	Kind TransactionKind

	// FromMemberID is empty for deposits.
	FromMemberID string
	ToMemberID   string
	Amount       int64
	Status       TransactionStatus

	// Balance snapshots taken under the row locks.
	FromBalanceBefore int64
	ToBalanceBefore   int64
	FromBalanceAfter  int64
	ToBalanceAfter    int64

	GroupID   string
	ExpenseID string
	Note      string

	// IdempotencyKey is unique per sender when set.
	IdempotencyKey string

	// FailureReason explains a failed status.
	FailureReason string

	// SplitsSettled is the number of splits flipped by a successful transfer.
	SplitsSettled int64

	CreatedAt   int64
	CompletedAt int64
}
