package calculator

import (
	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/models"
)

// fullBasisPoints is 100% expressed in basis points.
const fullBasisPoints = 10000

// Participant is one member taking part in an expense.
// Amount is read by the exact policy, BasisPoints by the percentage policy.
type Participant struct {
	MemberID    string
	Amount      int64
	BasisPoints int64
}

// Share is the computed portion of one participant.
type Share struct {
	MemberID string
	Share    int64
	Owed     int64
}

// ComputeSplits divides amount among participants according to policy.
//
// The shares always sum to amount exactly. Whatever integer division leaves over
// goes, in full, to the first participant (in input order) who is not the payer.
// The payer's Owed is always 0; every other participant owes their Share.
func ComputeSplits(policy models.SplitPolicy, amount int64, payerID string, participants []Participant) ([]Share, error) {
	if amount <= 0 {
		return nil, errs.Newf(errs.ErrInvalid, "amount must be positive, got %d", amount)
	}
	if len(participants) == 0 {
		return nil, errs.Newf(errs.ErrInvalid, "must have at least one participant")
	}
	seen := make(map[string]bool, len(participants))
	for _, p := range participants {
		if p.MemberID == "" {
			return nil, errs.Newf(errs.ErrInvalid, "participant id is required")
		}
		if seen[p.MemberID] {
			return nil, errs.Newf(errs.ErrInvalid, "participant %s listed twice", p.MemberID)
		}
		seen[p.MemberID] = true
	}

	var shares []int64
	var err error
	switch policy {
	case models.SplitEqual:
		shares = equalShares(amount, len(participants))
	case models.SplitExact:
		shares, err = exactShares(amount, participants)
	case models.SplitPercentage:
		shares, err = percentageShares(amount, participants)
	default:
		return nil, errs.Newf(errs.ErrInvalid, "unknown split policy %q", policy)
	}
	if err != nil {
		return nil, err
	}

	var sum int64
	for _, s := range shares {
		sum += s
	}
	shares[remainderIndex(participants, payerID)] += amount - sum

	out := make([]Share, len(participants))
	for i, p := range participants {
		out[i] = Share{MemberID: p.MemberID, Share: shares[i], Owed: shares[i]}
		if p.MemberID == payerID {
			out[i].Owed = 0
		}
	}
	return out, nil
}

func equalShares(amount int64, n int) []int64 {
	each := amount / int64(n)
	shares := make([]int64, n)
	for i := range shares {
		shares[i] = each
	}
	return shares
}

func exactShares(amount int64, participants []Participant) ([]int64, error) {
	shares := make([]int64, len(participants))
	var sum int64
	for i, p := range participants {
		if p.Amount < 0 || p.Amount > amount {
			return nil, errs.Newf(errs.ErrInvalid, "amount for %s must be between 0 and %d", p.MemberID, amount)
		}
		shares[i] = p.Amount
		sum += p.Amount
	}
	if sum != amount {
		return nil, errs.Newf(errs.ErrInvalid, "exact amounts sum to %d, want %d", sum, amount)
	}
	return shares, nil
}

func percentageShares(amount int64, participants []Participant) ([]int64, error) {
	shares := make([]int64, len(participants))
	var total int64
	q, r := amount/fullBasisPoints, amount%fullBasisPoints
	for i, p := range participants {
		if p.BasisPoints < 1 || p.BasisPoints > fullBasisPoints {
			return nil, errs.Newf(errs.ErrInvalid, "basis points for %s must be between 1 and %d", p.MemberID, fullBasisPoints)
		}
		total += p.BasisPoints
		// floor(amount*bp/10000) without overflowing int64
		shares[i] = q*p.BasisPoints + r*p.BasisPoints/fullBasisPoints
	}
	if total != fullBasisPoints {
		return nil, errs.Newf(errs.ErrInvalid, "percentages sum to %d basis points, want %d", total, fullBasisPoints)
	}
	return shares, nil
}

// remainderIndex picks the first non-payer participant, or 0 when the payer is
// the only participant.
func remainderIndex(participants []Participant, payerID string) int {
	for i, p := range participants {
		if p.MemberID != payerID {
			return i
		}
	}
	return 0
}
