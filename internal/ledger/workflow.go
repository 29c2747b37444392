package ledger

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/mmynk/splitledger/internal/amount"
	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/events"
	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// Policy tunes the external payment workflow.
type Policy struct {
	// AllowRejectAfterConfirm lets the receiver reject a request the payer has
	// already confirmed.
	AllowRejectAfterConfirm bool

	// HandleDomain is appended to derived payment addresses, e.g. "alice@upi".
	HandleDomain string

	// Currency is the ISO 4217 code placed in payment links.
	Currency string

	// LinkScheme prefixes payment links.
	LinkScheme string
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		HandleDomain: "upi",
		Currency:     "INR",
		LinkScheme:   "upi://pay",
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.HandleDomain == "" {
		p.HandleDomain = d.HandleDomain
	}
	if p.Currency == "" {
		p.Currency = d.Currency
	}
	if p.LinkScheme == "" {
		p.LinkScheme = d.LinkScheme
	}
	return p
}

// NewPayment describes an external payment the payer intends to make.
type NewPayment struct {
	PayerID    string
	ReceiverID string
	Amount     int64
	GroupID    string
	Note       string
}

// Workflow drives external payment requests through
// created -> payer_confirmed -> approved, or to rejected.
type Workflow struct {
	store   storage.Store
	dir     Directory
	emitter events.Emitter
	policy  Policy
	logger  *slog.Logger
}

// NewWorkflow creates a Workflow. A nil emitter discards events.
func NewWorkflow(store storage.Store, emitter events.Emitter, policy Policy, logger *slog.Logger) *Workflow {
	if emitter == nil {
		emitter = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{store: store, dir: store, emitter: emitter, policy: policy.withDefaults(), logger: logger}
}

// Policy returns the effective policy.
func (w *Workflow) Policy() Policy { return w.policy }

// Create records a new request and sends the receiver a payment link.
func (w *Workflow) Create(ctx context.Context, p NewPayment) (*models.PaymentRequest, error) {
	switch {
	case p.PayerID == "" || p.ReceiverID == "":
		return nil, errs.Newf(errs.ErrInvalid, "payer and receiver are required")
	case p.PayerID == p.ReceiverID:
		return nil, errs.Newf(errs.ErrInvalid, "cannot pay yourself")
	case p.Amount <= 0:
		return nil, errs.Newf(errs.ErrInvalid, "amount must be positive, got %d", p.Amount)
	}

	members, err := w.dir.GetMembersByIDs(ctx, []string{p.PayerID, p.ReceiverID})
	if err != nil {
		return nil, errs.Unavailable(err)
	}
	if _, ok := members[p.PayerID]; !ok {
		return nil, errs.Newf(errs.ErrNotFound, "member %s not found", p.PayerID)
	}
	receiver, ok := members[p.ReceiverID]
	if !ok {
		return nil, errs.Newf(errs.ErrNotFound, "receiver %s not found", p.ReceiverID)
	}

	address := w.PaymentAddress(receiver)
	req := &models.PaymentRequest{
		PayerID:        p.PayerID,
		ReceiverID:     p.ReceiverID,
		GroupID:        p.GroupID,
		Amount:         p.Amount,
		Status:         models.PaymentCreated,
		PaymentAddress: address,
		PaymentLink:    w.PaymentLink(address, receiver.Name, p.Amount, p.Note),
		Note:           p.Note,
		CreatedAt:      now(),
	}
	if err := w.store.CreatePaymentRequest(ctx, req); err != nil {
		return nil, errs.Unavailable(err)
	}
	metrics.PaymentTransitions.WithLabelValues("create", "ok").Inc()

	w.emitter.Emit(ctx, events.Member(req.ReceiverID), events.PaymentRequestCreated{
		RequestID:   req.ID,
		PayerID:     req.PayerID,
		ReceiverID:  req.ReceiverID,
		Amount:      req.Amount,
		PaymentLink: req.PaymentLink,
	})
	return req, nil
}

// PaymentAddress returns the member's handle, or one derived from their name.
func (w *Workflow) PaymentAddress(m *models.Member) string {
	if m.PaymentHandle != "" {
		return m.PaymentHandle
	}
	name := strings.ToLower(strings.Join(strings.Fields(m.Name), ""))
	if name == "" {
		name = m.ID
	}
	return name + "@" + w.policy.HandleDomain
}

// PaymentLink builds a deep link such as
// upi://pay?am=33.34&cu=INR&pa=alice%40upi&pn=Alice.
func (w *Workflow) PaymentLink(address, name string, minor int64, note string) string {
	q := url.Values{}
	q.Set("pa", address)
	q.Set("pn", name)
	q.Set("am", amount.Major(w.policy.Currency, minor))
	q.Set("cu", w.policy.Currency)
	if note != "" {
		q.Set("tn", note)
	}
	return w.policy.LinkScheme + "?" + q.Encode()
}

// step checks the actor and current state and applies one transition to req.
type step func(ctx context.Context, tx storage.Tx, req *models.PaymentRequest, ts int64) error

// transition runs s under the request's row lock. Terminal requests are
// rejected before the actor is checked.
func (w *Workflow) transition(ctx context.Context, name, requestID string, s step) (*models.PaymentRequest, error) {
	if requestID == "" {
		return nil, errs.Newf(errs.ErrInvalid, "request id is required")
	}

	var result *models.PaymentRequest
	err := w.store.WithTx(ctx, func(tx storage.Tx) error {
		req, err := tx.LockPaymentRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status.Terminal() {
			return errs.Newf(errs.ErrInvalidTransition, "payment request is already %s", req.Status)
		}
		ts := now()
		if err := s(ctx, tx, req, ts); err != nil {
			return err
		}
		req.UpdatedAt = ts
		if err := tx.UpdatePaymentRequest(ctx, req); err != nil {
			return err
		}
		result = req
		return nil
	})
	if err != nil {
		err = errs.Unavailable(err)
		metrics.PaymentTransitions.WithLabelValues(name, errs.KindOf(err)).Inc()
		return nil, err
	}
	metrics.PaymentTransitions.WithLabelValues(name, "ok").Inc()
	w.logger.InfoContext(ctx, "Payment request transitioned",
		"request_id", result.ID,
		"transition", name,
		"status", result.Status,
	)
	return result, nil
}

// Confirm records that the payer has sent the money.
func (w *Workflow) Confirm(ctx context.Context, requestID, actorID string) (*models.PaymentRequest, error) {
	req, err := w.transition(ctx, "confirm", requestID, func(_ context.Context, _ storage.Tx, req *models.PaymentRequest, ts int64) error {
		if actorID != req.PayerID {
			return errs.Newf(errs.ErrForbidden, "only the payer can confirm")
		}
		if req.Status != models.PaymentCreated {
			return errs.Newf(errs.ErrInvalidTransition, "cannot confirm a request in state %s", req.Status)
		}
		req.Status = models.PaymentPayerConfirmed
		req.PayerConfirmedAt = ts
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.emitter.Emit(ctx, events.Member(req.ReceiverID), events.PaymentPayerConfirmed{
		RequestID:  req.ID,
		PayerID:    req.PayerID,
		ReceiverID: req.ReceiverID,
		Amount:     req.Amount,
	})
	return req, nil
}

// Approve accepts the payment and settles the splits the payer owes the
// receiver. Of two concurrent approvals exactly one succeeds; the other sees
// the approved state and fails with errs.ErrInvalidTransition.
func (w *Workflow) Approve(ctx context.Context, requestID, actorID string) (*models.PaymentRequest, error) {
	var settled int64
	req, err := w.transition(ctx, "approve", requestID, func(ctx context.Context, tx storage.Tx, req *models.PaymentRequest, ts int64) error {
		if actorID != req.ReceiverID {
			return errs.Newf(errs.ErrForbidden, "only the receiver can approve")
		}
		n, err := tx.SettleSplits(ctx, req.PayerID, req.ReceiverID, req.GroupID)
		if err != nil {
			return err
		}
		settled = n
		req.Status = models.PaymentApproved
		req.ApprovedAt = ts
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.emitter.Emit(ctx, events.Member(req.PayerID), events.PaymentApproved{
		RequestID:     req.ID,
		PayerID:       req.PayerID,
		ReceiverID:    req.ReceiverID,
		Amount:        req.Amount,
		SplitsSettled: settled,
	})
	return req, nil
}

// Reject declines the payment. Nothing is settled.
func (w *Workflow) Reject(ctx context.Context, requestID, actorID string) (*models.PaymentRequest, error) {
	req, err := w.transition(ctx, "reject", requestID, func(_ context.Context, _ storage.Tx, req *models.PaymentRequest, ts int64) error {
		if actorID != req.ReceiverID {
			return errs.Newf(errs.ErrForbidden, "only the receiver can reject")
		}
		switch {
		case req.Status == models.PaymentCreated:
		case req.Status == models.PaymentPayerConfirmed && w.policy.AllowRejectAfterConfirm:
		default:
			return errs.Newf(errs.ErrInvalidTransition, "cannot reject a request in state %s", req.Status)
		}
		req.Status = models.PaymentRejected
		req.RejectedAt = ts
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.emitter.Emit(ctx, events.Member(req.PayerID), events.PaymentRejected{
		RequestID:  req.ID,
		PayerID:    req.PayerID,
		ReceiverID: req.ReceiverID,
		Amount:     req.Amount,
	})
	return req, nil
}

// Get returns a request visible to actorID, who must be its payer or receiver.
func (w *Workflow) Get(ctx context.Context, requestID, actorID string) (*models.PaymentRequest, error) {
	req, err := w.store.GetPaymentRequest(ctx, requestID)
	if err != nil {
		return nil, errs.Unavailable(err)
	}
	if actorID != req.PayerID && actorID != req.ReceiverID {
		return nil, errs.Newf(errs.ErrForbidden, "not a party to this payment request")
	}
	return req, nil
}

// ListIncoming returns every open request waiting on memberID as receiver.
func (w *Workflow) ListIncoming(ctx context.Context, memberID string) ([]*models.PaymentRequest, error) {
	reqs, err := w.store.ListPaymentRequests(ctx, memberID, true,
		[]models.PaymentStatus{models.PaymentCreated, models.PaymentPayerConfirmed}, -1)
	if err != nil {
		return nil, errs.Unavailable(err)
	}
	return reqs, nil
}

// ListOutgoing returns the requests memberID has made, newest first.
func (w *Workflow) ListOutgoing(ctx context.Context, memberID string, limit int) ([]*models.PaymentRequest, error) {
	reqs, err := w.store.ListPaymentRequests(ctx, memberID, false, nil, limit)
	if err != nil {
		return nil, errs.Unavailable(err)
	}
	return reqs, nil
}

// SetPaymentHandle stores the member's external payment address.
func (w *Workflow) SetPaymentHandle(ctx context.Context, memberID, handle string) error {
	handle = strings.TrimSpace(handle)
	if at := strings.IndexByte(handle, '@'); at <= 0 || at == len(handle)-1 {
		return errs.Newf(errs.ErrInvalid, "payment handle %q must look like name@provider", handle)
	}
	return errs.Unavailable(w.dir.SetPaymentHandle(ctx, memberID, handle))
}
