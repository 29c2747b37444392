package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/models"
)

const memberColumns = `id, name, email, payment_handle, wallet_balance, created_at`

func scanMember(row pgx.Row) (*models.Member, error) {
	m := &models.Member{}
	if err := row.Scan(&m.ID, &m.Name, &m.Email, &m.PaymentHandle, &m.WalletBalance, &m.CreatedAt); err != nil {
		return nil, err
	}
	return m, nil
}

func collectMembers(rows pgx.Rows) (map[string]*models.Member, error) {
	defer rows.Close()
	out := make(map[string]*models.Member)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		out[m.ID] = m
	}
	return out, rows.Err()
}

// CreateMember inserts a new member.
func (s *Store) CreateMember(ctx context.Context, member *models.Member) error {
	if member.ID == "" {
		member.ID = uuid.New().String()
	}
	if member.CreatedAt == 0 {
		member.CreatedAt = time.Now().Unix()
	}
	_, err := s.pool.Exec(ctx, `
		insert into members (id, name, email, payment_handle, wallet_balance, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, member.ID, member.Name, member.Email, member.PaymentHandle, member.WalletBalance, member.CreatedAt)
	if isUniqueViolation(err) {
		return errs.Newf(errs.ErrConflict, "member %s already exists", member.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

// GetMember fetches a member by id.
func (s *Store) GetMember(ctx context.Context, memberID string) (*models.Member, error) {
	m, err := scanMember(s.pool.QueryRow(ctx, `select `+memberColumns+` from members where id = $1`, memberID))
	if isNoRows(err) {
		return nil, errs.Newf(errs.ErrNotFound, "member %s not found", memberID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

// GetMembersByIDs returns the members that exist among ids.
func (s *Store) GetMembersByIDs(ctx context.Context, ids []string) (map[string]*models.Member, error) {
	if len(ids) == 0 {
		return map[string]*models.Member{}, nil
	}
	rows, err := s.pool.Query(ctx, `select `+memberColumns+` from members where id = any($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get members by IDs: %w", err)
	}
	return collectMembers(rows)
}

// SetPaymentHandle updates a member's external payment handle.
func (s *Store) SetPaymentHandle(ctx context.Context, memberID, handle string) error {
	ct, err := s.pool.Exec(ctx, `update members set payment_handle = $1 where id = $2`, handle, memberID)
	if err != nil {
		return fmt.Errorf("failed to set payment handle: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return errs.Newf(errs.ErrNotFound, "member %s not found", memberID)
	}
	return nil
}

// CreateGroup inserts a group with its members in one transaction.
func (s *Store) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `insert into groups (id, name, created_at) values ($1, $2, $3)`,
		group.ID, group.Name, group.CreatedAt)
	if isUniqueViolation(err) {
		return errs.Newf(errs.ErrConflict, "group %s already exists", group.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}
	for _, memberID := range group.MemberIDs {
		if _, err := tx.Exec(ctx, `
			insert into group_members (group_id, member_id) values ($1, $2)
			on conflict do nothing
		`, group.ID, memberID); err != nil {
			return fmt.Errorf("failed to insert group member %s: %w", memberID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetGroup fetches a group with its member ids in ascending order.
func (s *Store) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	group := &models.Group{}
	err := s.pool.QueryRow(ctx, `select id, name, created_at from groups where id = $1`, groupID).
		Scan(&group.ID, &group.Name, &group.CreatedAt)
	if isNoRows(err) {
		return nil, errs.Newf(errs.ErrNotFound, "group %s not found", groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	group.MemberIDs, err = groupMemberIDs(ctx, s.pool, groupID)
	if err != nil {
		return nil, err
	}
	return group, nil
}

func groupMemberIDs(ctx context.Context, q querier, groupID string) ([]string, error) {
	rows, err := q.Query(ctx, `select member_id from group_members where group_id = $1 order by member_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get group members: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan group members: %w", err)
	}
	return ids, nil
}
