package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

var (
	_ storage.Tx     = (*sqliteTx)(nil)
	_ storage.Reader = (*sqliteReader)(nil)
)

type sqliteTx struct {
	tx *sql.Tx
}

// LockMembers reads the members in ascending id order. The single pooled
// connection already makes the transaction exclusive.
func (t *sqliteTx) LockMembers(ctx context.Context, ids ...string) (map[string]*models.Member, error) {
	sorted := uniqueSorted(ids)
	out := make(map[string]*models.Member, len(sorted))
	for _, id := range sorted {
		m, err := scanMember(t.tx.QueryRowContext(ctx,
			`SELECT `+memberColumns+` FROM members WHERE id = ?`, id))
		if isNoRows(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to lock member %s: %w", id, err)
		}
		out[id] = m
	}
	return out, nil
}

func (t *sqliteTx) AdjustWalletBalance(ctx context.Context, memberID string, delta int64) (int64, error) {
	var balance int64
	err := t.tx.QueryRowContext(ctx,
		`UPDATE members SET wallet_balance = wallet_balance + ? WHERE id = ? RETURNING wallet_balance`,
		delta, memberID,
	).Scan(&balance)
	if isNoRows(err) {
		return 0, errs.Newf(errs.ErrNotFound, "member %s not found", memberID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to adjust wallet balance: %w", err)
	}
	return balance, nil
}

func (t *sqliteTx) FindTransactionByKey(ctx context.Context, kind models.TransactionKind, ownerID, key string) (*models.WalletTransaction, error) {
	wt, err := scanTransaction(t.tx.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM wallet_transactions
		 WHERE kind = ? AND `+keyOwner+` = ? AND idempotency_key = ?`,
		string(kind), ownerID, key,
	))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction by key: %w", err)
	}
	return wt, nil
}

func (t *sqliteTx) InsertTransaction(ctx context.Context, wt *models.WalletTransaction) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO wallet_transactions (id, kind, from_member_id, to_member_id, amount, status,
		     from_balance_before, to_balance_before, from_balance_after, to_balance_after,
		     group_id, expense_id, note, idempotency_key, failure_reason, splits_settled, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wt.ID, string(wt.Kind), wt.FromMemberID, wt.ToMemberID, wt.Amount, string(wt.Status),
		wt.FromBalanceBefore, wt.ToBalanceBefore, wt.FromBalanceAfter, wt.ToBalanceAfter,
		wt.GroupID, wt.ExpenseID, wt.Note, wt.IdempotencyKey, wt.FailureReason, wt.SplitsSettled,
		wt.CreatedAt, wt.CompletedAt,
	)
	if isUniqueViolation(err) {
		return errs.Newf(errs.ErrConflict, "idempotency key %q already used", wt.IdempotencyKey)
	}
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (t *sqliteTx) FinishTransaction(ctx context.Context, wt *models.WalletTransaction) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE wallet_transactions
		 SET status = ?, from_balance_after = ?, to_balance_after = ?, failure_reason = ?,
		     splits_settled = ?, completed_at = ?
		 WHERE id = ? AND status = ?`,
		string(wt.Status), wt.FromBalanceAfter, wt.ToBalanceAfter, wt.FailureReason,
		wt.SplitsSettled, wt.CompletedAt, wt.ID, string(models.TxPending),
	)
	if err != nil {
		return fmt.Errorf("failed to finish transaction: %w", err)
	}
	return nil
}

func (t *sqliteTx) SettleSplits(ctx context.Context, debtorID, creditorID, groupID string) (int64, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE expense_splits SET settled = 1
		 WHERE member_id = ? AND settled = 0 AND expense_id IN (
		     SELECT id FROM expenses
		     WHERE payer_id = ? AND deleted_at = 0 AND (? = '' OR group_id = ?)
		 )`,
		debtorID, creditorID, groupID, groupID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to settle splits: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count settled splits: %w", err)
	}
	return n, nil
}

func (t *sqliteTx) LockPaymentRequest(ctx context.Context, requestID string) (*models.PaymentRequest, error) {
	return getPaymentRequest(ctx, t.tx, requestID)
}

func (t *sqliteTx) UpdatePaymentRequest(ctx context.Context, req *models.PaymentRequest) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE payment_requests
		 SET status = ?, payer_confirmed_at = ?, approved_at = ?, rejected_at = ?, updated_at = ?
		 WHERE id = ?`,
		string(req.Status), req.PayerConfirmedAt, req.ApprovedAt, req.RejectedAt, req.UpdatedAt, req.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment request: %w", err)
	}
	return nil
}

type sqliteReader struct {
	q querier
}

func (r *sqliteReader) ScopeMemberIDs(ctx context.Context, scope storage.Scope) ([]string, error) {
	if scope.GroupID != "" {
		if err := r.exists(ctx, "groups", scope.GroupID); err != nil {
			return nil, err
		}
		return groupMemberIDs(ctx, r.q, scope.GroupID)
	}

	if err := r.exists(ctx, "members", scope.MemberID); err != nil {
		return nil, err
	}
	rows, err := r.q.QueryContext(ctx,
		`SELECT ? UNION
		 SELECT other.member_id FROM group_members mine
		 JOIN group_members other ON other.group_id = mine.group_id
		 WHERE mine.member_id = ?
		 ORDER BY 1`,
		scope.MemberID, scope.MemberID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list scope members: %w", err)
	}
	defer rows.Close()
	return collectStrings(rows)
}

func (r *sqliteReader) OpenSplits(ctx context.Context, scope storage.Scope) ([]models.OpenSplit, error) {
	filter, args := "e.group_id = ?", []any{scope.GroupID}
	if scope.GroupID == "" {
		// Expenses of groups the member has left still count while they are
		// the payer or hold a split.
		filter = `(e.group_id IN (SELECT group_id FROM group_members WHERE member_id = ?)
		   OR e.payer_id = ?
		   OR e.id IN (SELECT expense_id FROM expense_splits WHERE member_id = ?))`
		args = []any{scope.MemberID, scope.MemberID, scope.MemberID}
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT s.expense_id, e.group_id, e.payer_id, s.member_id, s.owed_amount
		 FROM expense_splits s
		 JOIN expenses e ON e.id = s.expense_id
		 WHERE s.settled = 0 AND s.owed_amount > 0 AND e.deleted_at = 0 AND `+filter+`
		 ORDER BY e.created_at, s.expense_id, s.member_id`,
		args...,
	)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate open splits: %w", err)
	}
	return out, nil
}

func (r *sqliteReader) exists(ctx context.Context, table, id string) error {
	var one int
	err := r.q.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&one)
	if isNoRows(err) {
		return errs.Newf(errs.ErrNotFound, "%s %s not found", singular(table), id)
	}
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", table, err)
	}
	return nil
}

func singular(table string) string {
	return table[:len(table)-1]
}

// uniqueSorted returns the distinct non-empty ids in ascending order.
func uniqueSorted(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
