package calculator

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/mmynk/splitledger/internal/models"
)

func nets(pairs ...any) []MemberBalance {
	out := make([]MemberBalance, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, MemberBalance{MemberID: pairs[i].(string), Net: int64(pairs[i+1].(int))})
	}
	return out
}

// applyTransfers moves each transfer through the balances and returns the result.
func applyTransfers(balances []MemberBalance, transfers []Transfer) map[string]int64 {
	out := make(map[string]int64, len(balances))
	for _, b := range balances {
		out[b.MemberID] = b.Net
	}
	for _, tr := range transfers {
		out[tr.From] += tr.Amount
		out[tr.To] -= tr.Amount
	}
	return out
}

func TestPlanSettlements(t *testing.T) {
	tests := []struct {
		name     string
		balances []MemberBalance
		want     []Transfer
	}{
		{
			name:     "dinner example",
			balances: nets("A", 6667, "B", -3334, "C", -3333),
			want: []Transfer{
				{From: "B", To: "A", Amount: 3334},
				{From: "C", To: "A", Amount: 3333},
			},
		},
		{
			name:     "all settled",
			balances: nets("A", 0, "B", 0),
			want:     []Transfer{},
		},
		{
			name:     "largest pairs first",
			balances: nets("A", 100, "B", 300, "C", -250, "D", -150),
			want: []Transfer{
				{From: "C", To: "B", Amount: 250},
				{From: "D", To: "B", Amount: 50},
				{From: "D", To: "A", Amount: 100},
			},
		},
		{
			name:     "ties keep input order",
			balances: nets("A", 50, "B", 50, "C", -50, "D", -50),
			want: []Transfer{
				{From: "C", To: "A", Amount: 50},
				{From: "D", To: "B", Amount: 50},
			},
		},
		{
			name:     "exact match advances both sides",
			balances: nets("A", 200, "B", -200, "C", 100, "D", -100),
			want: []Transfer{
				{From: "B", To: "A", Amount: 200},
				{From: "D", To: "C", Amount: 100},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlanSettlements(tt.balances)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d transfers %+v, want %d %+v", len(got), got, len(tt.want), tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("transfer %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// TestPlanSettlements_Conservation builds random expense histories and checks
// that the plan moves exactly the outstanding credit and zeroes every member.
func TestPlanSettlements_Conservation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ids := []string{"A", "B", "C", "D", "E", "F"}

	for round := 0; round < 200; round++ {
		var debts []Debt
		for e := 0; e < 1+rng.Intn(8); e++ {
			n := 1 + rng.Intn(len(ids))
			group := ids[:n]
			payer := group[rng.Intn(n)]
			amount := int64(1 + rng.Intn(50000))

			shares, err := ComputeSplits(models.SplitEqual, amount, payer, members(group...))
			if err != nil {
				t.Fatalf("round %d: %v", round, err)
			}
			for _, s := range shares {
				debts = append(debts, Debt{Debtor: s.MemberID, Creditor: payer, Amount: s.Owed})
			}
		}

		balances := AggregateBalances(ids, debts)
		transfers := PlanSettlements(balances)

		var credit, moved int64
		creditors, debtors := 0, 0
		for _, b := range balances {
			if b.Net > 0 {
				credit += b.Net
				creditors++
			} else if b.Net < 0 {
				debtors++
			}
		}
		for _, tr := range transfers {
			if tr.Amount <= 0 {
				t.Fatalf("round %d: non-positive transfer %+v", round, tr)
			}
			moved += tr.Amount
		}
		if moved != credit {
			t.Fatalf("round %d: moved %d, outstanding credit %d", round, moved, credit)
		}
		if creditors+debtors > 0 && len(transfers) > creditors+debtors-1 {
			t.Errorf("round %d: %d transfers exceeds bound %d", round, len(transfers), creditors+debtors-1)
		}
		for id, net := range applyTransfers(balances, transfers) {
			if net != 0 {
				t.Fatalf("round %d: %s left with %d", round, id, net)
			}
		}
	}
}

func TestPlanSettlements_SecondPassIsEmpty(t *testing.T) {
	balances := nets("A", 6667, "B", -3334, "C", -3333)
	first := PlanSettlements(balances)

	after := applyTransfers(balances, first)
	var settled []MemberBalance
	for _, b := range balances {
		settled = append(settled, MemberBalance{MemberID: b.MemberID, Net: after[b.MemberID]})
	}

	if second := PlanSettlements(settled); len(second) != 0 {
		t.Errorf("expected no transfers after settling, got %s", fmt.Sprint(second))
	}
}
