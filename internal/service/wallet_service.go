package service

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"

	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/pkg/api"
)

// WalletService implements splitledger.v1.WalletService.
type WalletService struct {
	store storage.Store
	exec  *ledger.Executor
}

// NewWalletService creates a new WalletService.
func NewWalletService(store storage.Store, exec *ledger.Executor) *WalletService {
	return &WalletService{store: store, exec: exec}
}

// GetWallet returns the caller's balance.
func (s *WalletService) GetWallet(ctx context.Context, _ *connect.Request[api.GetWalletRequest]) (*connect.Response[api.GetWalletResponse], error) {
	memberID, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	member, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.GetWalletResponse{MemberID: member.ID, Balance: member.WalletBalance}), nil
}

// Deposit tops up the caller's wallet.
func (s *WalletService) Deposit(ctx context.Context, req *connect.Request[api.DepositRequest]) (*connect.Response[api.TransactionResponse], error) {
	memberID, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := check(req.Msg); err != nil {
		return nil, err
	}

	wt, err := s.exec.Deposit(ctx, memberID, req.Msg.Amount, req.Msg.IdempotencyKey)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.TransactionResponse{Transaction: toAPITransaction(wt)}), nil
}

// Transfer pays another member from the caller's wallet. A transfer refused
// for insufficient funds is still recorded; its id is returned in the
// Transaction-Id error header.
func (s *WalletService) Transfer(ctx context.Context, req *connect.Request[api.TransferRequest]) (*connect.Response[api.TransactionResponse], error) {
	memberID, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := check(req.Msg); err != nil {
		return nil, err
	}

	wt, err := s.exec.Transfer(ctx, ledger.TransferRequest{
		FromMemberID:   memberID,
		ToMemberID:     req.Msg.ToMemberID,
		Amount:         req.Msg.Amount,
		GroupID:        req.Msg.GroupID,
		ExpenseID:      req.Msg.ExpenseID,
		Note:           req.Msg.Note,
		IdempotencyKey: req.Msg.IdempotencyKey,
	})
	if err != nil {
		cerr := toConnectError(err)
		var ce *connect.Error
		if wt != nil && errors.Is(err, errs.ErrInsufficientFunds) && errors.As(cerr, &ce) {
			ce.Meta().Set(api.TransactionIDHeader, wt.ID)
		}
		return nil, cerr
	}
	return connect.NewResponse(&api.TransactionResponse{Transaction: toAPITransaction(wt)}), nil
}

// ListTransactions returns the caller's wallet history, newest first.
func (s *WalletService) ListTransactions(ctx context.Context, req *connect.Request[api.ListTransactionsRequest]) (*connect.Response[api.ListTransactionsResponse], error) {
	memberID, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := check(req.Msg); err != nil {
		return nil, err
	}

	txs, err := s.store.ListTransactions(ctx, memberID, req.Msg.GroupID, req.Msg.Limit)
	if err != nil {
		return nil, toConnectError(err)
	}
	out := make([]api.Transaction, len(txs))
	for i, t := range txs {
		out[i] = toAPITransaction(t)
	}
	return connect.NewResponse(&api.ListTransactionsResponse{Transactions: out}), nil
}

// RegisterWalletService registers every procedure of svc on r.
func RegisterWalletService(r chi.Router, svc *WalletService, opts ...connect.HandlerOption) {
	opts = append([]connect.HandlerOption{api.WithCodec()}, opts...)
	r.Handle(api.WalletServiceGetWalletProcedure, connect.NewUnaryHandler(api.WalletServiceGetWalletProcedure, svc.GetWallet, opts...))
	r.Handle(api.WalletServiceDepositProcedure, connect.NewUnaryHandler(api.WalletServiceDepositProcedure, svc.Deposit, opts...))
	r.Handle(api.WalletServiceTransferProcedure, connect.NewUnaryHandler(api.WalletServiceTransferProcedure, svc.Transfer, opts...))
	r.Handle(api.WalletServiceListTransactionsProcedure, connect.NewUnaryHandler(api.WalletServiceListTransactionsProcedure, svc.ListTransactions, opts...))
}
