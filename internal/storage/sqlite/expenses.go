package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/models"
)

const expenseColumns = `id, group_id, payer_id, title, description, amount, policy, created_at, updated_at, deleted_at`

func scanExpense(row scanner) (*models.Expense, error) {
	e := &models.Expense{}
	var policy string
	if err := row.Scan(&e.ID, &e.GroupID, &e.PayerID, &e.Title, &e.Description, &e.Amount,
		&policy, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt); err != nil {
		return nil, err
	}
	e.Policy = models.SplitPolicy(policy)
	return e, nil
}

// CreateExpense persists an expense and its splits in one transaction.
func (s *SQLiteStore) CreateExpense(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	now := time.Now().Unix()
	if expense.CreatedAt == 0 {
		expense.CreatedAt = now
	}
	if expense.UpdatedAt == 0 {
		expense.UpdatedAt = expense.CreatedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO expenses (id, group_id, payer_id, title, description, amount, policy, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		expense.ID, expense.GroupID, expense.PayerID, expense.Title, expense.Description,
		expense.Amount, string(expense.Policy), expense.CreatedAt, expense.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}

	if err := insertSplits(ctx, tx, expense); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertSplits(ctx context.Context, tx *sql.Tx, expense *models.Expense) error {
	for i := range expense.Splits {
		split := &expense.Splits[i]
		split.ExpenseID = expense.ID
		_, err := tx.ExecContext(ctx,
			`INSERT INTO expense_splits (expense_id, member_id, share_amount, owed_amount, settled)
			 VALUES (?, ?, ?, ?, ?)`,
			expense.ID, split.MemberID, split.Share, split.Owed, boolToInt(split.Settled),
		)
		if err != nil {
			return fmt.Errorf("failed to insert split for %s: %w", split.MemberID, err)
		}
	}
	return nil
}

// GetExpense retrieves a non-deleted expense with its splits.
func (s *SQLiteStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	expense, err := scanExpense(s.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ? AND deleted_at = 0`, expenseID))
	if isNoRows(err) {
		return nil, errs.Newf(errs.ErrNotFound, "expense %s not found", expenseID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}

	expense.Splits, err = loadSplits(ctx, s.db, expenseID)
	if err != nil {
		return nil, err
	}
	return expense, nil
}

func loadSplits(ctx context.Context, q querier, expenseID string) ([]models.ExpenseSplit, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT expense_id, member_id, share_amount, owed_amount, settled
		 FROM expense_splits WHERE expense_id = ? ORDER BY rowid`,
		expenseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get splits: %w", err)
	}
	defer rows.Close()

	var splits []models.ExpenseSplit
	for rows.Next() {
		var split models.ExpenseSplit
		if err := rows.Scan(&split.ExpenseID, &split.MemberID, &split.Share, &split.Owed, &split.Settled); err != nil {
			return nil, fmt.Errorf("failed to scan split: %w", err)
		}
		splits = append(splits, split)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate splits: %w", err)
	}
	return splits, nil
}

// ReplaceExpense updates an expense and regenerates its splits.
func (s *SQLiteStore) ReplaceExpense(ctx context.Context, expense *models.Expense) error {
	if expense.UpdatedAt == 0 {
		expense.UpdatedAt = time.Now().Unix()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var settled int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM expense_splits WHERE expense_id = ? AND settled = 1`, expense.ID,
	).Scan(&settled)
	if err != nil {
		return fmt.Errorf("failed to check settled splits: %w", err)
	}
	if settled > 0 {
		return errs.Newf(errs.ErrConflict, "expense %s has settled splits", expense.ID)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE expenses SET title = ?, description = ?, amount = ?, policy = ?, updated_at = ?
		 WHERE id = ? AND deleted_at = 0`,
		expense.Title, expense.Description, expense.Amount, string(expense.Policy), expense.UpdatedAt, expense.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.Newf(errs.ErrNotFound, "expense %s not found", expense.ID)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM expense_splits WHERE expense_id = ?", expense.ID); err != nil {
		return fmt.Errorf("failed to delete splits: %w", err)
	}
	if err := insertSplits(ctx, tx, expense); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SoftDeleteExpense marks an expense deleted so balances ignore it.
func (s *SQLiteStore) SoftDeleteExpense(ctx context.Context, expenseID string, deletedAt int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE expenses SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at = 0`,
		deletedAt, deletedAt, expenseID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.Newf(errs.ErrNotFound, "expense %s not found", expenseID)
	}
	return nil
}

// ListExpensesByGroup retrieves non-deleted expenses of a group, newest first.
func (s *SQLiteStore) ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE group_id = ? AND deleted_at = 0
		 ORDER BY created_at DESC, rowid DESC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}

	var expenses []*models.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	// Splits are loaded after the cursor is closed; the pool has one connection.
	for _, e := range expenses {
		if e.Splits, err = loadSplits(ctx, s.db, e.ID); err != nil {
			return nil, err
		}
	}
	return expenses, nil
}
