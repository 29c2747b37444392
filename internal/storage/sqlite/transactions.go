package sqlite

import (
	"context"
	"fmt"

	"github.com/mmynk/splitledger/internal/models"
)

const transactionColumns = `id, kind, from_member_id, to_member_id, amount, status,
	from_balance_before, to_balance_before, from_balance_after, to_balance_after,
	group_id, expense_id, note, idempotency_key, failure_reason, splits_settled, created_at, completed_at`

func scanTransaction(row scanner) (*models.WalletTransaction, error) {
	wt := &models.WalletTransaction{}
	var kind, status string
	err := row.Scan(&wt.ID, &kind, &wt.FromMemberID, &wt.ToMemberID, &wt.Amount, &status,
		&wt.FromBalanceBefore, &wt.ToBalanceBefore, &wt.FromBalanceAfter, &wt.ToBalanceAfter,
		&wt.GroupID, &wt.ExpenseID, &wt.Note, &wt.IdempotencyKey, &wt.FailureReason, &wt.SplitsSettled,
		&wt.CreatedAt, &wt.CompletedAt)
	if err != nil {
		return nil, err
	}
	wt.Kind = models.TransactionKind(kind)
	wt.Status = models.TransactionStatus(status)
	return wt, nil
}

// ListTransactions retrieves wallet transactions sent or received by memberID,
// newest first.
func (s *SQLiteStore) ListTransactions(ctx context.Context, memberID, groupID string, limit int) ([]*models.WalletTransaction, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM wallet_transactions
		 WHERE (from_member_id = ? OR to_member_id = ?) AND (? = '' OR group_id = ?)
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		memberID, memberID, groupID, groupID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.WalletTransaction
	for rows.Next() {
		wt, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, wt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return out, nil
}
