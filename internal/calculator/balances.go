package calculator

import "sort"

// Debt is an unsettled obligation of Debtor towards Creditor, typically one
// open expense split.
type Debt struct {
	Debtor   string
	Creditor string
	Amount   int64
}

// MemberBalance is one member's aggregate position over a scope.
type MemberBalance struct {
	MemberID string

	// OwedToThem sums what others still owe on expenses this member paid.
	OwedToThem int64

	// TheyOwe sums what this member still owes on expenses others paid.
	TheyOwe int64

	// Net is OwedToThem - TheyOwe. Positive = owed money, negative = owes money.
	Net int64
}

// AggregateBalances reduces open debts into per-member balances.
//
// Every id in memberIDs appears in the result, in the given order, even with a
// zero balance. Members that only show up in debts (e.g. someone who left the
// group with open splits) are appended in ascending id order so that the sum of
// all nets stays zero.
func AggregateBalances(memberIDs []string, debts []Debt) []MemberBalance {
	index := make(map[string]int, len(memberIDs))
	balances := make([]MemberBalance, 0, len(memberIDs))
	for _, id := range memberIDs {
		if _, dup := index[id]; dup {
			continue
		}
		index[id] = len(balances)
		balances = append(balances, MemberBalance{MemberID: id})
	}

	var extra []string
	for _, d := range debts {
		for _, id := range []string{d.Debtor, d.Creditor} {
			if _, ok := index[id]; !ok {
				index[id] = -1
				extra = append(extra, id)
			}
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		index[id] = len(balances)
		balances = append(balances, MemberBalance{MemberID: id})
	}

	for _, d := range debts {
		// The payer's own split is not a debt.
		if d.Debtor == d.Creditor || d.Amount == 0 {
			continue
		}
		balances[index[d.Creditor]].OwedToThem += d.Amount
		balances[index[d.Debtor]].TheyOwe += d.Amount
	}

	for i := range balances {
		balances[i].Net = balances[i].OwedToThem - balances[i].TheyOwe
	}
	return balances
}
