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

const transactionColumns = `id, kind, from_member_id, to_member_id, amount, status,
	from_balance_before, to_balance_before, from_balance_after, to_balance_after,
	group_id, expense_id, note, idempotency_key, failure_reason, splits_settled, created_at, completed_at`

func scanTransaction(row pgx.Row) (*models.WalletTransaction, error) {
	wt := &models.WalletTransaction{}
	var kind, status string
	if err := row.Scan(&wt.ID, &kind, &wt.FromMemberID, &wt.ToMemberID, &wt.Amount, &status,
		&wt.FromBalanceBefore, &wt.ToBalanceBefore, &wt.FromBalanceAfter, &wt.ToBalanceAfter,
		&wt.GroupID, &wt.ExpenseID, &wt.Note, &wt.IdempotencyKey, &wt.FailureReason, &wt.SplitsSettled,
		&wt.CreatedAt, &wt.CompletedAt); err != nil {
		return nil, err
	}
	wt.Kind = models.TransactionKind(kind)
	wt.Status = models.TransactionStatus(status)
	return wt, nil
}

// ListTransactions returns transactions sent or received by memberID, newest first.
func (s *Store) ListTransactions(ctx context.Context, memberID, groupID string, limit int) ([]*models.WalletTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		select `+transactionColumns+` from wallet_transactions
		where (from_member_id = $1 or to_member_id = $1) and ($2 = '' or group_id = $2)
		order by created_at desc, seq desc
		limit $3
	`, memberID, groupID, limit)
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
	return out, rows.Err()
}

const paymentRequestColumns = `id, payer_id, receiver_id, group_id, amount, status, payment_address, payment_link,
	note, created_at, payer_confirmed_at, approved_at, rejected_at, updated_at`

func scanPaymentRequest(row pgx.Row) (*models.PaymentRequest, error) {
	req := &models.PaymentRequest{}
	var status string
	if err := row.Scan(&req.ID, &req.PayerID, &req.ReceiverID, &req.GroupID, &req.Amount, &status,
		&req.PaymentAddress, &req.PaymentLink, &req.Note, &req.CreatedAt, &req.PayerConfirmedAt,
		&req.ApprovedAt, &req.RejectedAt, &req.UpdatedAt); err != nil {
		return nil, err
	}
	req.Status = models.PaymentStatus(status)
	return req, nil
}

// CreatePaymentRequest persists a new payment request.
func (s *Store) CreatePaymentRequest(ctx context.Context, req *models.PaymentRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.CreatedAt == 0 {
		req.CreatedAt = time.Now().Unix()
	}
	if req.UpdatedAt == 0 {
		req.UpdatedAt = req.CreatedAt
	}
	if _, err := s.pool.Exec(ctx, `
		insert into payment_requests (id, payer_id, receiver_id, group_id, amount, status,
		    payment_address, payment_link, note, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, req.ID, req.PayerID, req.ReceiverID, req.GroupID, req.Amount, string(req.Status),
		req.PaymentAddress, req.PaymentLink, req.Note, req.CreatedAt, req.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert payment request: %w", err)
	}
	return nil
}

// GetPaymentRequest fetches a payment request by id.
func (s *Store) GetPaymentRequest(ctx context.Context, requestID string) (*models.PaymentRequest, error) {
	req, err := scanPaymentRequest(s.pool.QueryRow(ctx,
		`select `+paymentRequestColumns+` from payment_requests where id = $1`, requestID))
	if isNoRows(err) {
		return nil, errs.Newf(errs.ErrNotFound, "payment request %s not found", requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment request: %w", err)
	}
	return req, nil
}

// ListPaymentRequests returns requests received (incoming) or sent by memberID.
func (s *Store) ListPaymentRequests(ctx context.Context, memberID string, incoming bool, statuses []models.PaymentStatus, limit int) ([]*models.PaymentRequest, error) {
	if limit == 0 {
		limit = 50
	}
	// limit null means no limit
	var bound *int
	if limit > 0 {
		bound = &limit
	}
	column := "payer_id"
	if incoming {
		column = "receiver_id"
	}
	rows, err := s.pool.Query(ctx, `
		select `+paymentRequestColumns+` from payment_requests
		where `+column+` = $1 and (cardinality($2::text[]) = 0 or status = any($2))
		order by created_at desc, seq desc
		limit $3
	`, memberID, statusStrings(statuses), bound)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment requests: %w", err)
	}
	defer rows.Close()

	var out []*models.PaymentRequest
	for rows.Next() {
		req, err := scanPaymentRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// CreateNotification persists a notification.
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt == 0 {
		n.CreatedAt = time.Now().Unix()
	}
	if _, err := s.pool.Exec(ctx, `
		insert into notifications (id, member_id, kind, title, message, data, read, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, n.ID, n.MemberID, n.Kind, n.Title, n.Message, n.Data, n.Read, n.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns a member's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, memberID string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		select id, member_id, kind, title, message, data, read, created_at
		from notifications where member_id = $1
		order by created_at desc, seq desc
		limit $2
	`, memberID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		if err := rows.Scan(&n.ID, &n.MemberID, &n.Kind, &n.Title, &n.Message, &n.Data, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead marks one notification of the member read.
func (s *Store) MarkNotificationRead(ctx context.Context, memberID, notificationID string) error {
	ct, err := s.pool.Exec(ctx, `update notifications set read = true where id = $1 and member_id = $2`,
		notificationID, memberID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return errs.Newf(errs.ErrNotFound, "notification %s not found", notificationID)
	}
	return nil
}

// MarkAllNotificationsRead marks all of the member's notifications read.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, memberID string) error {
	if _, err := s.pool.Exec(ctx, `update notifications set read = true where member_id = $1 and not read`, memberID); err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return nil
}
