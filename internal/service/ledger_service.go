package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"

	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/pkg/api"
)

// LedgerService implements splitledger.v1.LedgerService: balances, settlement
// plans and the expense book.
type LedgerService struct {
	store storage.Store
	agg   *ledger.Aggregator
	book  *ledger.ExpenseBook
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(store storage.Store, agg *ledger.Aggregator, book *ledger.ExpenseBook) *LedgerService {
	return &LedgerService{store: store, agg: agg, book: book}
}

// scope resolves the requested scope for the caller. Callers may read groups
// they belong to and their own cross-group position only.
func (s *LedgerService) scope(ctx context.Context, memberID string, req api.ScopeRequest) (storage.Scope, error) {
	switch {
	case req.GroupID != "":
		group, err := s.store.GetGroup(ctx, req.GroupID)
		if err != nil {
			return storage.Scope{}, err
		}
		if !group.HasMember(memberID) {
			return storage.Scope{}, errs.Newf(errs.ErrForbidden, "not a member of group %s", req.GroupID)
		}
		return storage.GroupScope(req.GroupID), nil
	case req.MemberID != "" && req.MemberID != memberID:
		return storage.Scope{}, errs.Newf(errs.ErrForbidden, "cannot read another member's balances")
	default:
		return storage.MemberScope(memberID), nil
	}
}

// GetNetBalances returns every member's position over the scope.
func (s *LedgerService) GetNetBalances(ctx context.Context, req *connect.Request[api.GetNetBalancesRequest]) (*connect.Response[api.GetNetBalancesResponse], error) {
	memberID, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := check(req.Msg); err != nil {
		return nil, err
	}
	scope, err := s.scope(ctx, memberID, req.Msg.ScopeRequest)
	if err != nil {
		return nil, toConnectError(err)
	}

	balances, err := s.agg.NetBalances(ctx, scope)
	if err != nil {
		return nil, toConnectError(err)
	}
	out := make([]api.Balance, len(balances))
	for i, b := range balances {
		out[i] = api.Balance{MemberID: b.MemberID, OwedToThem: b.OwedToThem, TheyOwe: b.TheyOwe, Net: b.Net}
	}
	return connect.NewResponse(&api.GetNetBalancesResponse{Balances: out}), nil
}

// PlanSettlements returns the transfers that would clear the scope.
func (s *LedgerService) PlanSettlements(ctx context.Context, req *connect.Request[api.PlanSettlementsRequest]) (*connect.Response[api.PlanSettlementsResponse], error) {
	memberID, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := check(req.Msg); err != nil {
		return nil, err
	}
	scope, err := s.scope(ctx, memberID, req.Msg.ScopeRequest)
	if err != nil {
		return nil, toConnectError(err)
	}

	plan, err := s.agg.PlanSettlements(ctx, scope)
	if err != nil {
		return nil, toConnectError(err)
	}
	out := make([]api.PlannedTransfer, len(plan))
	for i, t := range plan {
		out[i] = api.PlannedTransfer{FromMemberID: t.From, ToMemberID: t.To, Amount: t.Amount}
	}
	slog.Debug("Settlement planned", "member_id", memberID, "transfers", len(out))
	return connect.NewResponse(&api.PlanSettlementsResponse{Transfers: out}), nil
}

// CreateExpense records an expense in a group the caller belongs to.
func (s *LedgerService) CreateExpense(ctx context.Context, req *connect.Request[api.CreateExpenseRequest]) (*connect.Response[api.ExpenseResponse], error) {
	memberID, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := check(req.Msg); err != nil {
		return nil, err
	}

	expense, err := s.book.Create(ctx, memberID, ledger.ExpenseInput{
		GroupID:      req.Msg.GroupID,
		PayerID:      req.Msg.PayerID,
		Title:        req.Msg.Title,
		Description:  req.Msg.Description,
		Amount:       req.Msg.Amount,
		Policy:       models.SplitPolicy(req.Msg.Policy),
		Participants: toParticipants(req.Msg.Participants),
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.ExpenseResponse{Expense: toAPIExpense(expense)}), nil
}

// UpdateExpense regenerates an unsettled expense. Payer only.
func (s *LedgerService) UpdateExpense(ctx context.Context, req *connect.Request[api.UpdateExpenseRequest]) (*connect.Response[api.ExpenseResponse], error) {
	memberID, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := check(req.Msg); err != nil {
		return nil, err
	}

	expense, err := s.book.Update(ctx, memberID, req.Msg.ExpenseID, ledger.ExpenseInput{
		Title:        req.Msg.Title,
		Description:  req.Msg.Description,
		Amount:       req.Msg.Amount,
		Policy:       models.SplitPolicy(req.Msg.Policy),
		Participants: toParticipants(req.Msg.Participants),
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.ExpenseResponse{Expense: toAPIExpense(expense)}), nil
}

// DeleteExpense soft-deletes an expense. Payer only.
func (s *LedgerService) DeleteExpense(ctx context.Context, req *connect.Request[api.DeleteExpenseRequest]) (*connect.Response[api.DeleteExpenseResponse], error) {
	memberID, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := check(req.Msg); err != nil {
		return nil, err
	}
	if err := s.book.Delete(ctx, memberID, req.Msg.ExpenseID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.DeleteExpenseResponse{}), nil
}

// ListExpenses returns a group's expenses, newest first.
func (s *LedgerService) ListExpenses(ctx context.Context, req *connect.Request[api.ListExpensesRequest]) (*connect.Response[api.ListExpensesResponse], error) {
	memberID, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := check(req.Msg); err != nil {
		return nil, err
	}

	expenses, err := s.book.List(ctx, memberID, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(err)
	}
	out := make([]api.Expense, len(expenses))
	for i, e := range expenses {
		out[i] = toAPIExpense(e)
	}
	return connect.NewResponse(&api.ListExpensesResponse{Expenses: out}), nil
}

// RegisterLedgerService registers every procedure of svc on r.
func RegisterLedgerService(r chi.Router, svc *LedgerService, opts ...connect.HandlerOption) {
	opts = append([]connect.HandlerOption{api.WithCodec()}, opts...)
	r.Handle(api.LedgerServiceGetNetBalancesProcedure, connect.NewUnaryHandler(api.LedgerServiceGetNetBalancesProcedure, svc.GetNetBalances, opts...))
	r.Handle(api.LedgerServicePlanSettlementsProcedure, connect.NewUnaryHandler(api.LedgerServicePlanSettlementsProcedure, svc.PlanSettlements, opts...))
	r.Handle(api.LedgerServiceCreateExpenseProcedure, connect.NewUnaryHandler(api.LedgerServiceCreateExpenseProcedure, svc.CreateExpense, opts...))
	r.Handle(api.LedgerServiceUpdateExpenseProcedure, connect.NewUnaryHandler(api.LedgerServiceUpdateExpenseProcedure, svc.UpdateExpense, opts...))
	r.Handle(api.LedgerServiceDeleteExpenseProcedure, connect.NewUnaryHandler(api.LedgerServiceDeleteExpenseProcedure, svc.DeleteExpense, opts...))
	r.Handle(api.LedgerServiceListExpensesProcedure, connect.NewUnaryHandler(api.LedgerServiceListExpensesProcedure, svc.ListExpenses, opts...))
}
