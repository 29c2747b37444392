package postgres

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/models"
)

const expenseColumns = `id, group_id, payer_id, title, description, amount, policy, created_at, updated_at, deleted_at`

func scanExpense(row pgx.Row) (*models.Expense, error) {
	e := &models.Expense{}
	var policy string
	if err := row.Scan(&e.ID, &e.GroupID, &e.PayerID, &e.Title, &e.Description, &e.Amount,
		&policy, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt); err != nil {
		return nil, err
	}
	e.Policy = models.SplitPolicy(policy)
	return e, nil
}

// CreateExpense inserts the expense header and its splits in one transaction.
func (s *Store) CreateExpense(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	if expense.CreatedAt == 0 {
		expense.CreatedAt = time.Now().Unix()
	}
	if expense.UpdatedAt == 0 {
		expense.UpdatedAt = expense.CreatedAt
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		insert into expenses (id, group_id, payer_id, title, description, amount, policy, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, expense.ID, expense.GroupID, expense.PayerID, expense.Title, expense.Description,
		expense.Amount, string(expense.Policy), expense.CreatedAt, expense.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}
	if err := insertSplits(ctx, tx, expense); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertSplits(ctx context.Context, tx pgx.Tx, expense *models.Expense) error {
	for i := range expense.Splits {
		split := &expense.Splits[i]
		split.ExpenseID = expense.ID
		if _, err := tx.Exec(ctx, `
			insert into expense_splits (expense_id, member_id, share_amount, owed_amount, settled)
			values ($1, $2, $3, $4, $5)
		`, expense.ID, split.MemberID, split.Share, split.Owed, split.Settled); err != nil {
			return fmt.Errorf("failed to insert split for %s: %w", split.MemberID, err)
		}
	}
	return nil
}

// GetExpense fetches a non-deleted expense with its splits.
func (s *Store) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	e, err := scanExpense(s.pool.QueryRow(ctx,
		`select `+expenseColumns+` from expenses where id = $1 and deleted_at = 0`, expenseID))
	if isNoRows(err) {
		return nil, errs.Newf(errs.ErrNotFound, "expense %s not found", expenseID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	if e.Splits, err = loadSplits(ctx, s.pool, expenseID); err != nil {
		return nil, err
	}
	return e, nil
}

func loadSplits(ctx context.Context, q querier, expenseID string) ([]models.ExpenseSplit, error) {
	rows, err := q.Query(ctx, `
		select expense_id, member_id, share_amount, owed_amount, settled
		from expense_splits where expense_id = $1 order by seq
	`, expenseID)
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
	return splits, rows.Err()
}

// ReplaceExpense updates an expense and regenerates its splits. The expense and
// split rows are locked before the settled check.
func (s *Store) ReplaceExpense(ctx context.Context, expense *models.Expense) error {
	if expense.UpdatedAt == 0 {
		expense.UpdatedAt = time.Now().Unix()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx, `select id from expenses where id = $1 and deleted_at = 0 for update`, expense.ID).Scan(&id)
	if isNoRows(err) {
		return errs.Newf(errs.ErrNotFound, "expense %s not found", expense.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to lock expense: %w", err)
	}

	rows, err := tx.Query(ctx, `select settled from expense_splits where expense_id = $1 for update`, expense.ID)
	if err != nil {
		return fmt.Errorf("failed to lock splits: %w", err)
	}
	flags, err := pgx.CollectRows(rows, pgx.RowTo[bool])
	if err != nil {
		return fmt.Errorf("failed to check settled splits: %w", err)
	}
	if slices.Contains(flags, true) {
		return errs.Newf(errs.ErrConflict, "expense %s has settled splits", expense.ID)
	}

	if _, err := tx.Exec(ctx, `
		update expenses set title = $1, description = $2, amount = $3, policy = $4, updated_at = $5
		where id = $6
	`, expense.Title, expense.Description, expense.Amount, string(expense.Policy), expense.UpdatedAt, expense.ID); err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	if _, err := tx.Exec(ctx, `delete from expense_splits where expense_id = $1`, expense.ID); err != nil {
		return fmt.Errorf("failed to delete splits: %w", err)
	}
	if err := insertSplits(ctx, tx, expense); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SoftDeleteExpense marks an expense deleted.
func (s *Store) SoftDeleteExpense(ctx context.Context, expenseID string, deletedAt int64) error {
	ct, err := s.pool.Exec(ctx, `
		update expenses set deleted_at = $1, updated_at = $1 where id = $2 and deleted_at = 0
	`, deletedAt, expenseID)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return errs.Newf(errs.ErrNotFound, "expense %s not found", expenseID)
	}
	return nil
}

// ListExpensesByGroup returns the group's non-deleted expenses, newest first.
func (s *Store) ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error) {
	rows, err := s.pool.Query(ctx, `
		select `+expenseColumns+` from expenses
		where group_id = $1 and deleted_at = 0
		order by created_at desc, seq desc
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var out []*models.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}
	rows.Close()

	for _, e := range out {
		if e.Splits, err = loadSplits(ctx, s.pool, e.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}
