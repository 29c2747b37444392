package ledger

import (
	"context"
	"slices"
	"strings"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/storage"
)

// Aggregator computes net balances from unsettled splits.
type Aggregator struct {
	store storage.Store
}

// NewAggregator creates an Aggregator reading from store.
func NewAggregator(store storage.Store) *Aggregator {
	return &Aggregator{store: store}
}

// NetBalances returns the position of every member in scope, in ascending id
// order. All reads happen in one snapshot so a transfer committing in between
// is either fully visible or not at all.
func (a *Aggregator) NetBalances(ctx context.Context, scope storage.Scope) ([]calculator.MemberBalance, error) {
	if (scope.GroupID == "") == (scope.MemberID == "") {
		return nil, errs.Newf(errs.ErrInvalid, "exactly one of group id and member id is required")
	}

	var balances []calculator.MemberBalance
	err := a.store.Snapshot(ctx, func(r storage.Reader) error {
		ids, err := r.ScopeMemberIDs(ctx, scope)
		if err != nil {
			return err
		}
		open, err := r.OpenSplits(ctx, scope)
		if err != nil {
			return err
		}

		debts := make([]calculator.Debt, 0, len(open))
		for _, s := range open {
			debts = append(debts, calculator.Debt{Debtor: s.MemberID, Creditor: s.PayerID, Amount: s.Owed})
		}
		balances = calculator.AggregateBalances(ids, debts)
		return nil
	})
	if err != nil {
		return nil, errs.Unavailable(err)
	}

	// Former members with open splits are appended by AggregateBalances.
	slices.SortStableFunc(balances, func(x, y calculator.MemberBalance) int {
		return strings.Compare(x.MemberID, y.MemberID)
	})
	return balances, nil
}

// PlanSettlements returns transfers that would zero every balance in scope.
func (a *Aggregator) PlanSettlements(ctx context.Context, scope storage.Scope) ([]calculator.Transfer, error) {
	balances, err := a.NetBalances(ctx, scope)
	if err != nil {
		return nil, err
	}
	return calculator.PlanSettlements(balances), nil
}
