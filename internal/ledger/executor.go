package ledger

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/events"
	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// TransferRequest asks to move Amount from one wallet to another.
type TransferRequest struct {
	FromMemberID string
	ToMemberID   string
	Amount       int64

	// GroupID limits which splits are settled. Empty settles across every group.
	GroupID   string
	ExpenseID string
	Note      string

	// IdempotencyKey makes retries of the same request return the first result.
	IdempotencyKey string
}

// Executor performs wallet transfers and deposits.
type Executor struct {
	store   storage.Store
	emitter events.Emitter
	logger  *slog.Logger
}

// NewExecutor creates an Executor. A nil emitter discards events.
func NewExecutor(store storage.Store, emitter events.Emitter, logger *slog.Logger) *Executor {
	if emitter == nil {
		emitter = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{store: store, emitter: emitter, logger: logger}
}

func validateTransfer(req TransferRequest) error {
	switch {
	case req.FromMemberID == "" || req.ToMemberID == "":
		return errs.Newf(errs.ErrInvalid, "from and to member ids are required")
	case req.FromMemberID == req.ToMemberID:
		return errs.Newf(errs.ErrInvalid, "cannot transfer to yourself")
	case req.Amount <= 0:
		return errs.Newf(errs.ErrInvalid, "amount must be positive, got %d", req.Amount)
	}
	return nil
}

// requireMembers fails with errs.ErrNotFound unless every id exists. It runs
// before any row is locked; the locked read checks again.
func (e *Executor) requireMembers(ctx context.Context, ids ...string) error {
	found, err := e.store.GetMembersByIDs(ctx, ids)
	if err != nil {
		return errs.Unavailable(err)
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return errs.Newf(errs.ErrNotFound, "member %s not found", id)
		}
	}
	return nil
}

// Transfer moves money between two wallets and settles the splits the sender
// owes the recipient.
//
// When the sender cannot cover the amount a failed transaction is committed
// and returned together with an errs.ErrInsufficientFunds error. A retry with
// the same idempotency key returns the recorded transaction unchanged.
func (e *Executor) Transfer(ctx context.Context, req TransferRequest) (*models.WalletTransaction, error) {
	if err := validateTransfer(req); err != nil {
		return nil, err
	}
	if err := e.requireMembers(ctx, req.FromMemberID, req.ToMemberID); err != nil {
		return nil, err
	}

	var (
		result *models.WalletTransaction
		replay bool
	)
	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		members, err := tx.LockMembers(ctx, req.FromMemberID, req.ToMemberID)
		if err != nil {
			return err
		}
		from, ok := members[req.FromMemberID]
		if !ok {
			return errs.Newf(errs.ErrNotFound, "member %s not found", req.FromMemberID)
		}
		to, ok := members[req.ToMemberID]
		if !ok {
			return errs.Newf(errs.ErrNotFound, "member %s not found", req.ToMemberID)
		}

		if req.IdempotencyKey != "" {
			existing, err := tx.FindTransactionByKey(ctx, models.KindTransfer, from.ID, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				if existing.ToMemberID != to.ID || existing.Amount != req.Amount || existing.GroupID != req.GroupID {
					return errs.Newf(errs.ErrConflict, "idempotency key %q was used for a different transfer", req.IdempotencyKey)
				}
				result, replay = existing, true
				return nil
			}
		}

		wt := &models.WalletTransaction{
			ID:                uuid.New().String(),
			Kind:              models.KindTransfer,
			FromMemberID:      from.ID,
			ToMemberID:        to.ID,
			Amount:            req.Amount,
			Status:            models.TxPending,
			FromBalanceBefore: from.WalletBalance,
			ToBalanceBefore:   to.WalletBalance,
			GroupID:           req.GroupID,
			ExpenseID:         req.ExpenseID,
			Note:              req.Note,
			IdempotencyKey:    req.IdempotencyKey,
			CreatedAt:         now(),
		}
		if err := tx.InsertTransaction(ctx, wt); err != nil {
			return err
		}

		if from.WalletBalance < req.Amount {
			wt.Status = models.TxFailed
			wt.FromBalanceAfter = from.WalletBalance
			wt.ToBalanceAfter = to.WalletBalance
			wt.FailureReason = "insufficient funds"
			wt.CompletedAt = now()
			result = wt
			return tx.FinishTransaction(ctx, wt)
		}

		if wt.FromBalanceAfter, err = tx.AdjustWalletBalance(ctx, from.ID, -req.Amount); err != nil {
			return err
		}
		if wt.ToBalanceAfter, err = tx.AdjustWalletBalance(ctx, to.ID, req.Amount); err != nil {
			return err
		}
		if wt.SplitsSettled, err = tx.SettleSplits(ctx, from.ID, to.ID, req.GroupID); err != nil {
			return err
		}
		wt.Status = models.TxSuccess
		wt.CompletedAt = now()
		result = wt
		return tx.FinishTransaction(ctx, wt)
	})
	if err != nil {
		return nil, errs.Unavailable(err)
	}

	if !replay {
		metrics.TransfersTotal.WithLabelValues(string(models.KindTransfer), string(result.Status)).Inc()
	}
	if result.Status == models.TxFailed {
		if !replay {
			e.logger.InfoContext(ctx, "Transfer failed",
				"transaction_id", result.ID,
				"from", result.FromMemberID,
				"balance", result.FromBalanceBefore,
				"amount", result.Amount,
			)
		}
		return result, errs.Newf(errs.ErrInsufficientFunds, "balance %d is less than %d", result.FromBalanceBefore, result.Amount)
	}
	if replay {
		return result, nil
	}

	metrics.TransferredAmount.Add(float64(result.Amount))
	e.logger.InfoContext(ctx, "Transfer completed",
		"transaction_id", result.ID,
		"from", result.FromMemberID,
		"to", result.ToMemberID,
		"amount", result.Amount,
		"splits_settled", result.SplitsSettled,
	)

	ev := events.PaymentSettled{
		TransactionID: result.ID,
		FromMemberID:  result.FromMemberID,
		ToMemberID:    result.ToMemberID,
		GroupID:       result.GroupID,
		Amount:        result.Amount,
		SplitsSettled: result.SplitsSettled,
	}
	if result.GroupID != "" {
		e.emitter.Emit(ctx, events.Group(result.GroupID), ev)
	}
	e.emitter.Emit(ctx, events.Member(result.FromMemberID), ev)
	e.emitter.Emit(ctx, events.Member(result.ToMemberID), ev)
	return result, nil
}

// Deposit tops up a member's wallet. It is idempotent per member and key.
func (e *Executor) Deposit(ctx context.Context, memberID string, amount int64, idempotencyKey string) (*models.WalletTransaction, error) {
	if memberID == "" {
		return nil, errs.Newf(errs.ErrInvalid, "member id is required")
	}
	if amount <= 0 {
		return nil, errs.Newf(errs.ErrInvalid, "amount must be positive, got %d", amount)
	}
	if err := e.requireMembers(ctx, memberID); err != nil {
		return nil, err
	}

	var (
		result *models.WalletTransaction
		replay bool
	)
	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		members, err := tx.LockMembers(ctx, memberID)
		if err != nil {
			return err
		}
		member, ok := members[memberID]
		if !ok {
			return errs.Newf(errs.ErrNotFound, "member %s not found", memberID)
		}

		if idempotencyKey != "" {
			existing, err := tx.FindTransactionByKey(ctx, models.KindDeposit, memberID, idempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				if existing.Amount != amount {
					return errs.Newf(errs.ErrConflict, "idempotency key %q was used for a different deposit", idempotencyKey)
				}
				result, replay = existing, true
				return nil
			}
		}

		wt := &models.WalletTransaction{
			ID:              uuid.New().String(),
			Kind:            models.KindDeposit,
			ToMemberID:      memberID,
			Amount:          amount,
			Status:          models.TxPending,
			ToBalanceBefore: member.WalletBalance,
			IdempotencyKey:  idempotencyKey,
			CreatedAt:       now(),
		}
		if err := tx.InsertTransaction(ctx, wt); err != nil {
			return err
		}
		if wt.ToBalanceAfter, err = tx.AdjustWalletBalance(ctx, memberID, amount); err != nil {
			return err
		}
		wt.Status = models.TxSuccess
		wt.CompletedAt = now()
		result = wt
		return tx.FinishTransaction(ctx, wt)
	})
	if err != nil {
		return nil, errs.Unavailable(err)
	}

	if !replay {
		metrics.TransfersTotal.WithLabelValues(string(models.KindDeposit), string(result.Status)).Inc()
		e.logger.InfoContext(ctx, "Deposit completed", "transaction_id", result.ID, "member", memberID, "amount", amount)
	}
	return result, nil
}
