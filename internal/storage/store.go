// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"

	"github.com/mmynk/splitledger/internal/models"
)

// Scope selects the expenses a balance computation looks at.
// Exactly one of GroupID and MemberID is set.
type Scope struct {
	// GroupID limits the scope to one group.
	GroupID string

	// MemberID widens the scope to every group the member belongs to.
	MemberID string
}

// GroupScope returns the scope of a single group.
func GroupScope(groupID string) Scope { return Scope{GroupID: groupID} }

// MemberScope returns the scope of all groups memberID belongs to.
func MemberScope(memberID string) Scope { return Scope{MemberID: memberID} }

// Store defines the storage operations used by the ledger engine.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL)
// without changing the engine.
type Store interface {
	MemberStore
	GroupStore
	ExpenseStore
	HistoryReader
	PaymentRequestStore
	NotificationStore

	// WithTx runs fn inside a single store transaction. The transaction commits
	// when fn returns nil and rolls back entirely otherwise.
	WithTx(ctx context.Context, fn func(Tx) error) error

	// Snapshot runs fn inside a read-only transaction so that every read sees
	// the same consistent state.
	Snapshot(ctx context.Context, fn func(Reader) error) error

	// Close releases any resources held by the store.
	Close() error
}

// MemberStore covers the member directory the engine reads from.
type MemberStore interface {
	// CreateMember inserts a member. ID and CreatedAt are filled when empty.
	CreateMember(ctx context.Context, member *models.Member) error

	// GetMember returns the member or an errs.ErrNotFound error.
	GetMember(ctx context.Context, memberID string) (*models.Member, error)

	// GetMembersByIDs returns the members that exist, keyed by id.
	GetMembersByIDs(ctx context.Context, ids []string) (map[string]*models.Member, error)

	// SetPaymentHandle updates a member's external payment handle.
	SetPaymentHandle(ctx context.Context, memberID, handle string) error
}

// GroupStore covers the group directory the engine reads from.
type GroupStore interface {
	// CreateGroup inserts a group with its members.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup returns the group or an errs.ErrNotFound error.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)
}

// ExpenseStore persists expenses together with their splits.
type ExpenseStore interface {
	// CreateExpense inserts the expense and its splits atomically.
	CreateExpense(ctx context.Context, expense *models.Expense) error

	// GetExpense returns a non-deleted expense with its splits.
	GetExpense(ctx context.Context, expenseID string) (*models.Expense, error)

	// ReplaceExpense updates the expense and regenerates all of its splits
	// atomically. It fails with errs.ErrConflict if any split is already settled.
	ReplaceExpense(ctx context.Context, expense *models.Expense) error

	// SoftDeleteExpense marks the expense deleted.
	SoftDeleteExpense(ctx context.Context, expenseID string, deletedAt int64) error

	// ListExpensesByGroup returns non-deleted expenses, newest first.
	ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error)
}

// HistoryReader exposes the audit trail.
type HistoryReader interface {
	// ListTransactions returns wallet transactions involving memberID, newest
	// first, optionally restricted to one group.
	ListTransactions(ctx context.Context, memberID, groupID string, limit int) ([]*models.WalletTransaction, error)
}

// PaymentRequestStore persists external payment requests. Transitions go
// through Tx so that they happen under the request's row lock.
type PaymentRequestStore interface {
	// CreatePaymentRequest persists a new request in its initial state.
	CreatePaymentRequest(ctx context.Context, req *models.PaymentRequest) error

	// GetPaymentRequest returns a request or an errs.ErrNotFound error.
	GetPaymentRequest(ctx context.Context, requestID string) (*models.PaymentRequest, error)

	// ListPaymentRequests returns requests where memberID is the receiver
	// (incoming) or the payer (outgoing), restricted to statuses when given.
	// A zero limit means 50; a negative limit returns every match.
	ListPaymentRequests(ctx context.Context, memberID string, incoming bool, statuses []models.PaymentStatus, limit int) ([]*models.PaymentRequest, error)
}

// NotificationStore persists member notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, memberID string, limit int) ([]*models.Notification, error)
	MarkNotificationRead(ctx context.Context, memberID, notificationID string) error
	MarkAllNotificationsRead(ctx context.Context, memberID string) error
}

// Reader is the read side available inside Snapshot.
type Reader interface {
	// ScopeMemberIDs lists every member of the scope in ascending id order.
	ScopeMemberIDs(ctx context.Context, scope Scope) ([]string, error)

	// OpenSplits lists unsettled splits of non-deleted expenses in the scope.
	OpenSplits(ctx context.Context, scope Scope) ([]models.OpenSplit, error)
}

// Tx is the write side available inside WithTx. Every method runs in the same
// underlying transaction.
type Tx interface {
	// LockMembers takes exclusive row locks on the given members in ascending id
	// order, whatever order the ids are passed in, and returns the members that
	// exist keyed by id.
	LockMembers(ctx context.Context, ids ...string) (map[string]*models.Member, error)

	// AdjustWalletBalance adds delta to the member's balance and returns the new
	// balance. The caller must hold the member's lock.
	AdjustWalletBalance(ctx context.Context, memberID string, delta int64) (int64, error)

	// FindTransactionByKey returns the transaction of the given kind recorded
	// under key by ownerID, or nil when there is none. The owner is the sender
	// of a transfer and the recipient of a deposit.
	FindTransactionByKey(ctx context.Context, kind models.TransactionKind, ownerID, key string) (*models.WalletTransaction, error)

	// InsertTransaction records a new wallet transaction.
	InsertTransaction(ctx context.Context, t *models.WalletTransaction) error

	// FinishTransaction stores the terminal status, after-balances and
	// completion fields of t. Rows already in a terminal status are not touched.
	FinishTransaction(ctx context.Context, t *models.WalletTransaction) error

	// SettleSplits flips settled on every unsettled split where debtorID owes
	// creditorID on a non-deleted expense, limited to groupID when it is set.
	// It returns the number of splits flipped.
	SettleSplits(ctx context.Context, debtorID, creditorID, groupID string) (int64, error)

	// LockPaymentRequest takes an exclusive lock on the request row and returns it.
	LockPaymentRequest(ctx context.Context, requestID string) (*models.PaymentRequest, error)

	// UpdatePaymentRequest stores the status and transition timestamps of req.
	UpdatePaymentRequest(ctx context.Context, req *models.PaymentRequest) error
}
