// Package events defines the engine's typed notifications and delivers them
// to sinks after the originating transaction has committed.
//
// Emitting never blocks the caller and never fails it: delivery is best effort
// and a lost event never undoes a committed money movement.
package events

import (
	"context"
	"fmt"
)

// Type names an event variant on the wire and in stored notifications.
type Type string

const (
	TypeExpenseAdded          Type = "expense_added"
	TypeExpenseUpdated        Type = "expense_updated"
	TypeExpenseDeleted        Type = "expense_deleted"
	TypePaymentSettled        Type = "payment_settled"
	TypePaymentRequestCreated Type = "payment_request_created"
	TypePaymentPayerConfirmed Type = "payment_payer_confirmed"
	TypePaymentApproved       Type = "payment_approved"
	TypePaymentRejected       Type = "payment_rejected"
)

// TargetKind says whether an event is addressed to one member or a whole group.
type TargetKind string

const (
	TargetMember TargetKind = "member"
	TargetGroup  TargetKind = "group"
)

// Target is the addressee of an event.
type Target struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id"`
}

// Member addresses a single member.
func Member(id string) Target { return Target{Kind: TargetMember, ID: id} }

// Group addresses every member of a group.
func Group(id string) Target { return Target{Kind: TargetGroup, ID: id} }

func (t Target) String() string { return string(t.Kind) + ":" + t.ID }

// Event is one of the variants below. The set is closed.
type Event interface {
	Type() Type

	// Describe renders a short title and message; format renders minor units.
	Describe(format func(int64) string) (title, message string)

	sealed()
}

// Emitter accepts events for delivery. Implementations must not block.
type Emitter interface {
	Emit(ctx context.Context, target Target, ev Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(context.Context, Target, Event) {}

// ExpenseAdded is sent when an expense is recorded.
type ExpenseAdded struct {
	ExpenseID string `json:"expense_id"`
	GroupID   string `json:"group_id"`
	PayerID   string `json:"payer_id"`
	Title     string `json:"title"`
	Amount    int64  `json:"amount"`
}

// ExpenseUpdated is sent when an expense's amount, policy or participants change.
type ExpenseUpdated struct {
	ExpenseID string `json:"expense_id"`
	GroupID   string `json:"group_id"`
	PayerID   string `json:"payer_id"`
	Title     string `json:"title"`
	Amount    int64  `json:"amount"`
}

// ExpenseDeleted is sent when an expense is soft-deleted.
type ExpenseDeleted struct {
	ExpenseID string `json:"expense_id"`
	GroupID   string `json:"group_id"`
	PayerID   string `json:"payer_id"`
	Title     string `json:"title"`
}

// PaymentSettled is sent after a successful wallet transfer.
type PaymentSettled struct {
	TransactionID string `json:"transaction_id"`
	FromMemberID  string `json:"from_member_id"`
	ToMemberID    string `json:"to_member_id"`
	GroupID       string `json:"group_id,omitempty"`
	Amount        int64  `json:"amount"`
	SplitsSettled int64  `json:"splits_settled"`
}

// PaymentRequestCreated is sent to the receiver of a new external payment request.
type PaymentRequestCreated struct {
	RequestID   string `json:"request_id"`
	PayerID     string `json:"payer_id"`
	ReceiverID  string `json:"receiver_id"`
	Amount      int64  `json:"amount"`
	PaymentLink string `json:"payment_link"`
}

// PaymentPayerConfirmed is sent to the receiver once the payer says they paid.
type PaymentPayerConfirmed struct {
	RequestID  string `json:"request_id"`
	PayerID    string `json:"payer_id"`
	ReceiverID string `json:"receiver_id"`
	Amount     int64  `json:"amount"`
}

// PaymentApproved is sent to the payer when the receiver approves.
type PaymentApproved struct {
	RequestID     string `json:"request_id"`
	PayerID       string `json:"payer_id"`
	ReceiverID    string `json:"receiver_id"`
	Amount        int64  `json:"amount"`
	SplitsSettled int64  `json:"splits_settled"`
}

// PaymentRejected is sent to the payer when the receiver rejects.
type PaymentRejected struct {
	RequestID  string `json:"request_id"`
	PayerID    string `json:"payer_id"`
	ReceiverID string `json:"receiver_id"`
	Amount     int64  `json:"amount"`
}

func (ExpenseAdded) Type() Type          { return TypeExpenseAdded }
func (ExpenseUpdated) Type() Type        { return TypeExpenseUpdated }
func (ExpenseDeleted) Type() Type        { return TypeExpenseDeleted }
func (PaymentSettled) Type() Type        { return TypePaymentSettled }
func (PaymentRequestCreated) Type() Type { return TypePaymentRequestCreated }
func (PaymentPayerConfirmed) Type() Type { return TypePaymentPayerConfirmed }
func (PaymentApproved) Type() Type       { return TypePaymentApproved }
func (PaymentRejected) Type() Type       { return TypePaymentRejected }

func (ExpenseAdded) sealed()          {}
func (ExpenseUpdated) sealed()        {}
func (ExpenseDeleted) sealed()        {}
func (PaymentSettled) sealed()        {}
func (PaymentRequestCreated) sealed() {}
func (PaymentPayerConfirmed) sealed() {}
func (PaymentApproved) sealed()       {}
func (PaymentRejected) sealed()       {}

func (e ExpenseAdded) Describe(format func(int64) string) (string, string) {
	return "New expense", fmt.Sprintf("%s added %q for %s", e.PayerID, e.Title, format(e.Amount))
}

func (e ExpenseUpdated) Describe(format func(int64) string) (string, string) {
	return "Expense updated", fmt.Sprintf("%s updated %q, now %s", e.PayerID, e.Title, format(e.Amount))
}

func (e ExpenseDeleted) Describe(func(int64) string) (string, string) {
	return "Expense deleted", fmt.Sprintf("%s deleted %q", e.PayerID, e.Title)
}

func (e PaymentSettled) Describe(format func(int64) string) (string, string) {
	return "Payment settled", fmt.Sprintf("%s paid %s %s", e.FromMemberID, e.ToMemberID, format(e.Amount))
}

func (e PaymentRequestCreated) Describe(format func(int64) string) (string, string) {
	return "Payment incoming", fmt.Sprintf("%s is paying you %s", e.PayerID, format(e.Amount))
}

func (e PaymentPayerConfirmed) Describe(format func(int64) string) (string, string) {
	return "Payment sent", fmt.Sprintf("%s says they sent %s, please approve", e.PayerID, format(e.Amount))
}

func (e PaymentApproved) Describe(format func(int64) string) (string, string) {
	return "Payment approved", fmt.Sprintf("%s approved your payment of %s", e.ReceiverID, format(e.Amount))
}

func (e PaymentRejected) Describe(format func(int64) string) (string, string) {
	return "Payment rejected", fmt.Sprintf("%s rejected your payment of %s", e.ReceiverID, format(e.Amount))
}

// Envelope is the unit handed to sinks and the JSON published on the wire.
type Envelope struct {
	Type    Type   `json:"type"`
	Target  Target `json:"target"`
	Payload Event  `json:"payload"`
	Time    int64  `json:"time"`
}
