package service

import (
	"encoding/json"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/pkg/api"
)

func toAPIExpense(e *models.Expense) api.Expense {
	splits := make([]api.Split, len(e.Splits))
	for i, s := range e.Splits {
		splits[i] = api.Split{MemberID: s.MemberID, Share: s.Share, Owed: s.Owed, Settled: s.Settled}
	}
	return api.Expense{
		ID:          e.ID,
		GroupID:     e.GroupID,
		PayerID:     e.PayerID,
		Title:       e.Title,
		Description: e.Description,
		Amount:      e.Amount,
		Policy:      string(e.Policy),
		Splits:      splits,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func toParticipants(in []api.Participant) []calculator.Participant {
	out := make([]calculator.Participant, len(in))
	for i, p := range in {
		out[i] = calculator.Participant{MemberID: p.MemberID, Amount: p.Amount, BasisPoints: p.BasisPoints}
	}
	return out
}

func toAPITransaction(t *models.WalletTransaction) api.Transaction {
	return api.Transaction{
		ID:                t.ID,
		Kind:              string(t.Kind),
		FromMemberID:      t.FromMemberID,
		ToMemberID:        t.ToMemberID,
		Amount:            t.Amount,
		Status:            string(t.Status),
		FromBalanceBefore: t.FromBalanceBefore,
		FromBalanceAfter:  t.FromBalanceAfter,
		ToBalanceBefore:   t.ToBalanceBefore,
		ToBalanceAfter:    t.ToBalanceAfter,
		GroupID:           t.GroupID,
		ExpenseID:         t.ExpenseID,
		Note:              t.Note,
		IdempotencyKey:    t.IdempotencyKey,
		FailureReason:     t.FailureReason,
		SplitsSettled:     t.SplitsSettled,
		CreatedAt:         t.CreatedAt,
		CompletedAt:       t.CompletedAt,
	}
}

func toAPIPayment(p *models.PaymentRequest) api.Payment {
	return api.Payment{
		ID:               p.ID,
		PayerID:          p.PayerID,
		ReceiverID:       p.ReceiverID,
		GroupID:          p.GroupID,
		Amount:           p.Amount,
		Status:           string(p.Status),
		PaymentAddress:   p.PaymentAddress,
		PaymentLink:      p.PaymentLink,
		Note:             p.Note,
		CreatedAt:        p.CreatedAt,
		PayerConfirmedAt: p.PayerConfirmedAt,
		ApprovedAt:       p.ApprovedAt,
		RejectedAt:       p.RejectedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func toAPIPayments(in []*models.PaymentRequest) []api.Payment {
	out := make([]api.Payment, len(in))
	for i, p := range in {
		out[i] = toAPIPayment(p)
	}
	return out
}

func toAPINotification(n *models.Notification) api.Notification {
	return api.Notification{
		ID:        n.ID,
		Kind:      n.Kind,
		Title:     n.Title,
		Message:   n.Message,
		Data:      json.RawMessage(n.Data),
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}
