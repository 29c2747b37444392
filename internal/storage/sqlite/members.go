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

const memberColumns = `id, name, email, payment_handle, wallet_balance, created_at`

func scanMember(row scanner) (*models.Member, error) {
	m := &models.Member{}
	if err := row.Scan(&m.ID, &m.Name, &m.Email, &m.PaymentHandle, &m.WalletBalance, &m.CreatedAt); err != nil {
		return nil, err
	}
	return m, nil
}

// CreateMember inserts a new member into the database.
func (s *SQLiteStore) CreateMember(ctx context.Context, member *models.Member) error {
	if member.ID == "" {
		member.ID = uuid.New().String()
	}
	if member.CreatedAt == 0 {
		member.CreatedAt = time.Now().Unix()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (id, name, email, payment_handle, wallet_balance, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		member.ID, member.Name, member.Email, member.PaymentHandle, member.WalletBalance, member.CreatedAt,
	)
	if isUniqueViolation(err) {
		return errs.Newf(errs.ErrConflict, "member %s already exists", member.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

// GetMember retrieves a member by ID.
func (s *SQLiteStore) GetMember(ctx context.Context, memberID string) (*models.Member, error) {
	m, err := scanMember(s.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = ?`, memberID))
	if isNoRows(err) {
		return nil, errs.Newf(errs.ErrNotFound, "member %s not found", memberID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

// GetMembersByIDs retrieves the members that exist among ids.
func (s *SQLiteStore) GetMembersByIDs(ctx context.Context, ids []string) (map[string]*models.Member, error) {
	return membersByIDs(ctx, s.db, ids)
}

func membersByIDs(ctx context.Context, q querier, ids []string) (map[string]*models.Member, error) {
	out := make(map[string]*models.Member, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := q.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id IN (`+placeholders(len(ids))+`) ORDER BY id`,
		stringArgs(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get members by IDs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		out[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	return out, nil
}

// SetPaymentHandle updates a member's external payment handle.
func (s *SQLiteStore) SetPaymentHandle(ctx context.Context, memberID, handle string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE members SET payment_handle = ? WHERE id = ?`, handle, memberID)
	if err != nil {
		return fmt.Errorf("failed to set payment handle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.Newf(errs.ErrNotFound, "member %s not found", memberID)
	}
	return nil
}

// CreateGroup persists a group and its member list.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO groups (id, name, created_at) VALUES (?, ?, ?)",
		group.ID, group.Name, group.CreatedAt,
	)
	if isUniqueViolation(err) {
		return errs.Newf(errs.ErrConflict, "group %s already exists", group.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}

	for _, memberID := range group.MemberIDs {
		_, err = tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO group_members (group_id, member_id) VALUES (?, ?)",
			group.ID, memberID,
		)
		if err != nil {
			return fmt.Errorf("failed to insert group member %s: %w", memberID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetGroup retrieves a group with its member ids in ascending order.
func (s *SQLiteStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	group := &models.Group{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM groups WHERE id = ?", groupID,
	).Scan(&group.ID, &group.Name, &group.CreatedAt)
	if isNoRows(err) {
		return nil, errs.Newf(errs.ErrNotFound, "group %s not found", groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	group.MemberIDs, err = groupMemberIDs(ctx, s.db, groupID)
	if err != nil {
		return nil, err
	}
	return group, nil
}

func groupMemberIDs(ctx context.Context, q querier, groupID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT member_id FROM group_members WHERE group_id = ? ORDER BY member_id", groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get group members: %w", err)
	}
	defer rows.Close()

	return collectStrings(rows)
}

func collectStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return out, nil
}
