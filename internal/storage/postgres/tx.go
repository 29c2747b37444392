package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

var (
	_ storage.Tx     = (*pgTx)(nil)
	_ storage.Reader = (*pgReader)(nil)
)

type pgTx struct{ tx pgx.Tx }

// LockMembers takes row locks in ascending id order so that two transfers
// between the same pair, in either direction, cannot deadlock.
func (t *pgTx) LockMembers(ctx context.Context, ids ...string) (map[string]*models.Member, error) {
	if len(ids) == 0 {
		return map[string]*models.Member{}, nil
	}
	rows, err := t.tx.Query(ctx, `
		select `+memberColumns+` from members
		where id = any($1)
		order by id
		for update
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to lock members: %w", err)
	}
	return collectMembers(rows)
}

func (t *pgTx) AdjustWalletBalance(ctx context.Context, memberID string, delta int64) (int64, error) {
	var balance int64
	err := t.tx.QueryRow(ctx, `
		update members set wallet_balance = wallet_balance + $1 where id = $2 returning wallet_balance
	`, delta, memberID).Scan(&balance)
	if isNoRows(err) {
		return 0, errs.Newf(errs.ErrNotFound, "member %s not found", memberID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to adjust wallet balance: %w", err)
	}
	return balance, nil
}

func (t *pgTx) FindTransactionByKey(ctx context.Context, kind models.TransactionKind, ownerID, key string) (*models.WalletTransaction, error) {
	wt, err := scanTransaction(t.tx.QueryRow(ctx, `
		select `+transactionColumns+` from wallet_transactions
		where kind = $1 and `+keyOwner+` = $2 and idempotency_key = $3
	`, string(kind), ownerID, key))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction by key: %w", err)
	}
	return wt, nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, wt *models.WalletTransaction) error {
	_, err := t.tx.Exec(ctx, `
		insert into wallet_transactions (id, kind, from_member_id, to_member_id, amount, status,
		    from_balance_before, to_balance_before, from_balance_after, to_balance_after,
		    group_id, expense_id, note, idempotency_key, failure_reason, splits_settled, created_at, completed_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`, wt.ID, string(wt.Kind), wt.FromMemberID, wt.ToMemberID, wt.Amount, string(wt.Status),
		wt.FromBalanceBefore, wt.ToBalanceBefore, wt.FromBalanceAfter, wt.ToBalanceAfter,
		wt.GroupID, wt.ExpenseID, wt.Note, wt.IdempotencyKey, wt.FailureReason, wt.SplitsSettled,
		wt.CreatedAt, wt.CompletedAt)
	if isUniqueViolation(err) {
		return errs.Newf(errs.ErrConflict, "idempotency key %q already used", wt.IdempotencyKey)
	}
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (t *pgTx) FinishTransaction(ctx context.Context, wt *models.WalletTransaction) error {
	_, err := t.tx.Exec(ctx, `
		update wallet_transactions
		set status = $1, from_balance_after = $2, to_balance_after = $3, failure_reason = $4,
		    splits_settled = $5, completed_at = $6
		where id = $7 and status = $8
	`, string(wt.Status), wt.FromBalanceAfter, wt.ToBalanceAfter, wt.FailureReason,
		wt.SplitsSettled, wt.CompletedAt, wt.ID, string(models.TxPending))
	if err != nil {
		return fmt.Errorf("failed to finish transaction: %w", err)
	}
	return nil
}

func (t *pgTx) SettleSplits(ctx context.Context, debtorID, creditorID, groupID string) (int64, error) {
	ct, err := t.tx.Exec(ctx, `
		update expense_splits s set settled = true
		from expenses e
		where e.id = s.expense_id
		  and s.member_id = $1 and not s.settled
		  and e.payer_id = $2 and e.deleted_at = 0
		  and ($3 = '' or e.group_id = $3)
	`, debtorID, creditorID, groupID)
	if err != nil {
		return 0, fmt.Errorf("failed to settle splits: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (t *pgTx) LockPaymentRequest(ctx context.Context, requestID string) (*models.PaymentRequest, error) {
	req, err := scanPaymentRequest(t.tx.QueryRow(ctx,
		`select `+paymentRequestColumns+` from payment_requests where id = $1 for update`, requestID))
	if isNoRows(err) {
		return nil, errs.Newf(errs.ErrNotFound, "payment request %s not found", requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock payment request: %w", err)
	}
	return req, nil
}

func (t *pgTx) UpdatePaymentRequest(ctx context.Context, req *models.PaymentRequest) error {
	_, err := t.tx.Exec(ctx, `
		update payment_requests
		set status = $1, payer_confirmed_at = $2, approved_at = $3, rejected_at = $4, updated_at = $5
		where id = $6
	`, string(req.Status), req.PayerConfirmedAt, req.ApprovedAt, req.RejectedAt, req.UpdatedAt, req.ID)
	if err != nil {
		return fmt.Errorf("failed to update payment request: %w", err)
	}
	return nil
}

type pgReader struct{ q querier }

func (r *pgReader) ScopeMemberIDs(ctx context.Context, scope storage.Scope) ([]string, error) {
	if scope.GroupID != "" {
		if err := r.exists(ctx, "groups", "group", scope.GroupID); err != nil {
			return nil, err
		}
		return groupMemberIDs(ctx, r.q, scope.GroupID)
	}

	if err := r.exists(ctx, "members", "member", scope.MemberID); err != nil {
		return nil, err
	}
	rows, err := r.q.Query(ctx, `
		select $1::text
		union
		select other.member_id from group_members mine
		join group_members other on other.group_id = mine.group_id
		where mine.member_id = $1
		order by 1
	`, scope.MemberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scope members: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan scope members: %w", err)
	}
	return ids, nil
}

func (r *pgReader) OpenSplits(ctx context.Context, scope storage.Scope) ([]models.OpenSplit, error) {
	filter, arg := "e.group_id = $1", scope.GroupID
	if scope.GroupID == "" {
		// Expenses of groups the member has left still count while they are
		// the payer or hold a split.
		filter, arg = `(e.group_id in (select group_id from group_members where member_id = $1)
		   or e.payer_id = $1
		   or e.id in (select expense_id from expense_splits where member_id = $1))`, scope.MemberID
	}

	rows, err := r.q.Query(ctx, `
		select s.expense_id, e.group_id, e.payer_id, s.member_id, s.owed_amount
		from expense_splits s
		join expenses e on e.id = s.expense_id
		where not s.settled and s.owed_amount > 0 and e.deleted_at = 0 and `+filter+`
		order by e.created_at, s.expense_id, s.member_id
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list open splits: %w", err)
	}
	defer rows.Close()

	var out []models.OpenSplit
	for rows.Next() {
		var split models.OpenSplit
		if err := rows.Scan(&split.ExpenseID, &split.GroupID, &split.PayerID, &split.MemberID, &split.Owed); err != nil {
			return nil, fmt.Errorf("failed to scan open split: %w", err)
		}
		out = append(out, split)
	}
	return out, rows.Err()
}

func (r *pgReader) exists(ctx context.Context, table, noun, id string) error {
	var found bool
	if err := r.q.QueryRow(ctx, `select exists (select 1 from `+table+` where id = $1)`, id).Scan(&found); err != nil {
		return fmt.Errorf("failed to check %s: %w", noun, err)
	}
	if !found {
		return errs.Newf(errs.ErrNotFound, "%s %s not found", noun, id)
	}
	return nil
}
