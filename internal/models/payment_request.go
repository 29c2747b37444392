package models

// PaymentStatus is the workflow state of an external payment request.
type PaymentStatus string

const (
	PaymentCreated        PaymentStatus = "created"
	PaymentPayerConfirmed PaymentStatus = "payer_confirmed"
	PaymentApproved       PaymentStatus = "approved"
	PaymentRejected       PaymentStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentApproved || s == PaymentRejected
}

// PaymentRequest tracks a payment made outside the app (e.g., over UPI).
// It never moves wallet money; approval only settles the matching splits.
type PaymentRequest struct {
	ID         string
	PayerID    string
	ReceiverID string
	GroupID    string
	Amount     int64
	Status     PaymentStatus

	// PaymentAddress is the receiver's handle used in PaymentLink.
	PaymentAddress string
	PaymentLink    string

	// Note is free text supplied by the payer. It never carries workflow state.
	Note string

	CreatedAt        int64
	PayerConfirmedAt int64
	ApprovedAt       int64
	RejectedAt       int64
	UpdatedAt        int64
}
