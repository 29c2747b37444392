package service

import (
	"context"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"

	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/pkg/api"
)

// PaymentService implements splitledger.v1.PaymentService, the external
// payment workflow.
type PaymentService struct {
	workflow *ledger.Workflow
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(workflow *ledger.Workflow) *PaymentService {
	return &PaymentService{workflow: workflow}
}

// CreatePayment starts a payment from the caller to the receiver.
func (s *PaymentService) CreatePayment(ctx context.Context, req *connect.Request[api.CreatePaymentRequest]) (*connect.Response[api.PaymentResponse], error) {
	memberID, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := check(req.Msg); err != nil {
		return nil, err
	}

	pr, err := s.workflow.Create(ctx, ledger.NewPayment{
		PayerID:    memberID,
		ReceiverID: req.Msg.ReceiverID,
		Amount:     req.Msg.Amount,
		GroupID:    req.Msg.GroupID,
		Note:       req.Msg.Note,
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.PaymentResponse{Payment: toAPIPayment(pr)}), nil
}

type transitionFunc func(ctx context.Context, requestID, actorID string) (*models.PaymentRequest, error)

func (s *PaymentService) transition(ctx context.Context, msg *api.PaymentActionRequest, fn transitionFunc) (*connect.Response[api.PaymentResponse], error) {
	memberID, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := check(msg); err != nil {
		return nil, err
	}
	pr, err := fn(ctx, msg.RequestID, memberID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.PaymentResponse{Payment: toAPIPayment(pr)}), nil
}

// ConfirmPayment is called by the payer once the money has been sent.
func (s *PaymentService) ConfirmPayment(ctx context.Context, req *connect.Request[api.PaymentActionRequest]) (*connect.Response[api.PaymentResponse], error) {
	return s.transition(ctx, req.Msg, s.workflow.Confirm)
}

// ApprovePayment is called by the receiver and settles the payer's splits.
func (s *PaymentService) ApprovePayment(ctx context.Context, req *connect.Request[api.PaymentActionRequest]) (*connect.Response[api.PaymentResponse], error) {
	return s.transition(ctx, req.Msg, s.workflow.Approve)
}

// RejectPayment is called by the receiver.
func (s *PaymentService) RejectPayment(ctx context.Context, req *connect.Request[api.PaymentActionRequest]) (*connect.Response[api.PaymentResponse], error) {
	return s.transition(ctx, req.Msg, s.workflow.Reject)
}

// GetPayment returns a request the caller is payer or receiver of.
func (s *PaymentService) GetPayment(ctx context.Context, req *connect.Request[api.GetPaymentRequest]) (*connect.Response[api.PaymentResponse], error) {
	memberID, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := check(req.Msg); err != nil {
		return nil, err
	}
	pr, err := s.workflow.Get(ctx, req.Msg.RequestID, memberID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.PaymentResponse{Payment: toAPIPayment(pr)}), nil
}

// ListIncomingPayments returns open requests the caller has to act on.
func (s *PaymentService) ListIncomingPayments(ctx context.Context, _ *connect.Request[api.ListPaymentsRequest]) (*connect.Response[api.ListPaymentsResponse], error) {
	memberID, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	reqs, err := s.workflow.ListIncoming(ctx, memberID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.ListPaymentsResponse{Payments: toAPIPayments(reqs)}), nil
}

// ListOutgoingPayments returns the caller's own requests, newest first.
func (s *PaymentService) ListOutgoingPayments(ctx context.Context, req *connect.Request[api.ListPaymentsRequest]) (*connect.Response[api.ListPaymentsResponse], error) {
	memberID, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := check(req.Msg); err != nil {
		return nil, err
	}
	reqs, err := s.workflow.ListOutgoing(ctx, memberID, req.Msg.Limit)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.ListPaymentsResponse{Payments: toAPIPayments(reqs)}), nil
}

// SetPaymentHandle stores the caller's external payment address.
func (s *PaymentService) SetPaymentHandle(ctx context.Context, req *connect.Request[api.SetPaymentHandleRequest]) (*connect.Response[api.SetPaymentHandleResponse], error) {
	memberID, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := check(req.Msg); err != nil {
		return nil, err
	}
	if err := s.workflow.SetPaymentHandle(ctx, memberID, req.Msg.Handle); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.SetPaymentHandleResponse{}), nil
}

// RegisterPaymentService registers every procedure of svc on r.
func RegisterPaymentService(r chi.Router, svc *PaymentService, opts ...connect.HandlerOption) {
	opts = append([]connect.HandlerOption{api.WithCodec()}, opts...)
	r.Handle(api.PaymentServiceCreatePaymentProcedure, connect.NewUnaryHandler(api.PaymentServiceCreatePaymentProcedure, svc.CreatePayment, opts...))
	r.Handle(api.PaymentServiceConfirmPaymentProcedure, connect.NewUnaryHandler(api.PaymentServiceConfirmPaymentProcedure, svc.ConfirmPayment, opts...))
	r.Handle(api.PaymentServiceApprovePaymentProcedure, connect.NewUnaryHandler(api.PaymentServiceApprovePaymentProcedure, svc.ApprovePayment, opts...))
	r.Handle(api.PaymentServiceRejectPaymentProcedure, connect.NewUnaryHandler(api.PaymentServiceRejectPaymentProcedure, svc.RejectPayment, opts...))
	r.Handle(api.PaymentServiceGetPaymentProcedure, connect.NewUnaryHandler(api.PaymentServiceGetPaymentProcedure, svc.GetPayment, opts...))
	r.Handle(api.PaymentServiceListIncomingPaymentsProcedure, connect.NewUnaryHandler(api.PaymentServiceListIncomingPaymentsProcedure, svc.ListIncomingPayments, opts...))
	r.Handle(api.PaymentServiceListOutgoingPaymentsProcedure, connect.NewUnaryHandler(api.PaymentServiceListOutgoingPaymentsProcedure, svc.ListOutgoingPayments, opts...))
	r.Handle(api.PaymentServiceSetPaymentHandleProcedure, connect.NewUnaryHandler(api.PaymentServiceSetPaymentHandleProcedure, svc.SetPaymentHandle, opts...))
}
