package api

import "encoding/json"

// Balance is one member's position over a scope.
type Balance struct {
	MemberID   string `json:"member_id"`
	OwedToThem int64  `json:"owed_to_them"`
	TheyOwe    int64  `json:"they_owe"`
	Net        int64  `json:"net"`
}

// PlannedTransfer is one payment of a settlement plan.
type PlannedTransfer struct {
	FromMemberID string `json:"from_member_id"`
	ToMemberID   string `json:"to_member_id"`
	Amount       int64  `json:"amount"`
}

// Participant takes part in an expense. Amount is read by the exact policy and
// BasisPoints by the percentage policy.
type Participant struct {
	MemberID    string `json:"member_id" validate:"required"`
	Amount      int64  `json:"amount,omitempty" validate:"gte=0"`
	BasisPoints int64  `json:"basis_points,omitempty" validate:"gte=0,lte=10000"`
}

// Split is one member's portion of an expense.
type Split struct {
	MemberID string `json:"member_id"`
	Share    int64  `json:"share"`
	Owed     int64  `json:"owed"`
	Settled  bool   `json:"settled"`
}

// Expense is an expense with its splits.
type Expense struct {
	ID          string  `json:"id"`
	GroupID     string  `json:"group_id"`
	PayerID     string  `json:"payer_id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Amount      int64   `json:"amount"`
	Policy      string  `json:"policy"`
	Splits      []Split `json:"splits"`
	CreatedAt   int64   `json:"created_at"`
	UpdatedAt   int64   `json:"updated_at"`
}

// Transaction is a wallet transaction record.
type Transaction struct {
	ID                string `json:"id"`
	Kind              string `json:"kind"`
	FromMemberID      string `json:"from_member_id,omitempty"`
	ToMemberID        string `json:"to_member_id"`
	Amount            int64  `json:"amount"`
	Status            string `json:"status"`
	FromBalanceBefore int64  `json:"from_balance_before"`
	FromBalanceAfter  int64  `json:"from_balance_after"`
	ToBalanceBefore   int64  `json:"to_balance_before"`
	ToBalanceAfter    int64  `json:"to_balance_after"`
	GroupID           string `json:"group_id,omitempty"`
	ExpenseID         string `json:"expense_id,omitempty"`
	Note              string `json:"note,omitempty"`
	IdempotencyKey    string `json:"idempotency_key,omitempty"`
	FailureReason     string `json:"failure_reason,omitempty"`
	SplitsSettled     int64  `json:"splits_settled"`
	CreatedAt         int64  `json:"created_at"`
	CompletedAt       int64  `json:"completed_at"`
}

// Payment is an external payment request.
type Payment struct {
	ID               string `json:"id"`
	PayerID          string `json:"payer_id"`
	ReceiverID       string `json:"receiver_id"`
	GroupID          string `json:"group_id,omitempty"`
	Amount           int64  `json:"amount"`
	Status           string `json:"status"`
	PaymentAddress   string `json:"payment_address"`
	PaymentLink      string `json:"payment_link"`
	Note             string `json:"note,omitempty"`
	CreatedAt        int64  `json:"created_at"`
	PayerConfirmedAt int64  `json:"payer_confirmed_at,omitempty"`
	ApprovedAt       int64  `json:"approved_at,omitempty"`
	RejectedAt       int64  `json:"rejected_at,omitempty"`
	UpdatedAt        int64  `json:"updated_at"`
}

// Notification is a stored event addressed to the caller.
type Notification struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	Read      bool            `json:"read"`
	CreatedAt int64           `json:"created_at"`
}

// LedgerService

// ScopeRequest selects a group, or every group of a member. With both empty
// the caller's own groups are used.
type ScopeRequest struct {
	GroupID  string `json:"group_id,omitempty" validate:"excluded_with=MemberID"`
	MemberID string `json:"member_id,omitempty"`
}

type GetNetBalancesRequest struct {
	ScopeRequest
}

type GetNetBalancesResponse struct {
	Balances []Balance `json:"balances"`
}

type PlanSettlementsRequest struct {
	ScopeRequest
}

type PlanSettlementsResponse struct {
	Transfers []PlannedTransfer `json:"transfers"`
}

type CreateExpenseRequest struct {
	GroupID      string        `json:"group_id" validate:"required"`
	PayerID      string        `json:"payer_id,omitempty"`
	Title        string        `json:"title" validate:"required,max=200"`
	Description  string        `json:"description,omitempty" validate:"max=2000"`
	Amount       int64         `json:"amount" validate:"gt=0"`
	Policy       string        `json:"policy" validate:"required,oneof=equal exact percentage"`
	Participants []Participant `json:"participants" validate:"required,min=1,dive"`
}

type UpdateExpenseRequest struct {
	ExpenseID    string        `json:"expense_id" validate:"required"`
	Title        string        `json:"title" validate:"required,max=200"`
	Description  string        `json:"description,omitempty" validate:"max=2000"`
	Amount       int64         `json:"amount" validate:"gt=0"`
	Policy       string        `json:"policy" validate:"required,oneof=equal exact percentage"`
	Participants []Participant `json:"participants" validate:"required,min=1,dive"`
}

type ExpenseResponse struct {
	Expense Expense `json:"expense"`
}

type DeleteExpenseRequest struct {
	ExpenseID string `json:"expense_id" validate:"required"`
}

type DeleteExpenseResponse struct{}

type ListExpensesRequest struct {
	GroupID string `json:"group_id" validate:"required"`
}

type ListExpensesResponse struct {
	Expenses []Expense `json:"expenses"`
}

// WalletService

type GetWalletRequest struct{}

type GetWalletResponse struct {
	MemberID string `json:"member_id"`
	Balance  int64  `json:"balance"`
}

type DepositRequest struct {
	Amount         int64  `json:"amount" validate:"gt=0"`
	IdempotencyKey string `json:"idempotency_key,omitempty" validate:"max=128"`
}

type TransferRequest struct {
	ToMemberID     string `json:"to_member_id" validate:"required"`
	Amount         int64  `json:"amount" validate:"gt=0"`
	GroupID        string `json:"group_id,omitempty"`
	ExpenseID      string `json:"expense_id,omitempty"`
	Note           string `json:"note,omitempty" validate:"max=500"`
	IdempotencyKey string `json:"idempotency_key,omitempty" validate:"max=128"`
}

type TransactionResponse struct {
	Transaction Transaction `json:"transaction"`
}

type ListTransactionsRequest struct {
	GroupID string `json:"group_id,omitempty"`
	Limit   int    `json:"limit,omitempty" validate:"gte=0,lte=500"`
}

type ListTransactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
}

// PaymentService

type CreatePaymentRequest struct {
	ReceiverID string `json:"receiver_id" validate:"required"`
	Amount     int64  `json:"amount" validate:"gt=0"`
	GroupID    string `json:"group_id,omitempty"`
	Note       string `json:"note,omitempty" validate:"max=500"`
}

// PaymentActionRequest names the request to confirm, approve or reject.
type PaymentActionRequest struct {
	RequestID string `json:"request_id" validate:"required"`
}

type GetPaymentRequest struct {
	RequestID string `json:"request_id" validate:"required"`
}

type PaymentResponse struct {
	Payment Payment `json:"payment"`
}

type ListPaymentsRequest struct {
	Limit int `json:"limit,omitempty" validate:"gte=0,lte=500"`
}

type ListPaymentsResponse struct {
	Payments []Payment `json:"payments"`
}

type SetPaymentHandleRequest struct {
	Handle string `json:"handle" validate:"required,contains=@,max=100"`
}

type SetPaymentHandleResponse struct{}

// NotificationService

type ListNotificationsRequest struct {
	Limit int `json:"limit,omitempty" validate:"gte=0,lte=500"`
}

type ListNotificationsResponse struct {
	Notifications []Notification `json:"notifications"`
}

type MarkNotificationReadRequest struct {
	NotificationID string `json:"notification_id" validate:"required"`
}

type MarkAllNotificationsReadRequest struct{}

type MarkReadResponse struct{}
