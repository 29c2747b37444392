package calculator

import "sort"

// Transfer is one planned payment from a debtor to a creditor.
type Transfer struct {
	From   string
	To     string
	Amount int64
}

type position struct {
	memberID  string
	remaining int64
}

// PlanSettlements turns net balances into transfers that zero every balance.
//
// Algorithm (greedy debt simplification):
//   - creditors (net > 0) and debtors (net < 0, as magnitude) are each sorted
//     descending; ties keep input order
//   - the largest creditor and largest debtor settle min(both); whichever side
//     reaches zero is passed (both on a tie)
//
// The sum of the transfers equals the sum of positive nets, and the plan has at
// most creditors+debtors-1 entries. It is not guaranteed to be the global
// minimum number of transfers.
func PlanSettlements(balances []MemberBalance) []Transfer {
	var creditors, debtors []position
	for _, b := range balances {
		switch {
		case b.Net > 0:
			creditors = append(creditors, position{memberID: b.MemberID, remaining: b.Net})
		case b.Net < 0:
			debtors = append(debtors, position{memberID: b.MemberID, remaining: -b.Net})
		}
	}

	sort.SliceStable(creditors, func(i, j int) bool { return creditors[i].remaining > creditors[j].remaining })
	sort.SliceStable(debtors, func(i, j int) bool { return debtors[i].remaining > debtors[j].remaining })

	transfers := make([]Transfer, 0)
	i, j := 0, 0
	for i < len(creditors) && j < len(debtors) {
		creditor := &creditors[i]
		debtor := &debtors[j]

		amount := min(creditor.remaining, debtor.remaining)
		if amount > 0 {
			transfers = append(transfers, Transfer{
				From:   debtor.memberID,
				To:     creditor.memberID,
				Amount: amount,
			})
		}

		creditor.remaining -= amount
		debtor.remaining -= amount

		if creditor.remaining == 0 {
			i++
		}
		if debtor.remaining == 0 {
			j++
		}
	}

	return transfers
}
