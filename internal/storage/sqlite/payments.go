package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/models"
)

const paymentRequestColumns = `id, payer_id, receiver_id, group_id, amount, status, payment_address, payment_link,
	note, created_at, payer_confirmed_at, approved_at, rejected_at, updated_at`

func scanPaymentRequest(row scanner) (*models.PaymentRequest, error) {
	req := &models.PaymentRequest{}
	var status string
	err := row.Scan(&req.ID, &req.PayerID, &req.ReceiverID, &req.GroupID, &req.Amount, &status,
		&req.PaymentAddress, &req.PaymentLink, &req.Note, &req.CreatedAt, &req.PayerConfirmedAt,
		&req.ApprovedAt, &req.RejectedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	req.Status = models.PaymentStatus(status)
	return req, nil
}

// CreatePaymentRequest persists a new payment request.
func (s *SQLiteStore) CreatePaymentRequest(ctx context.Context, req *models.PaymentRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.CreatedAt == 0 {
		req.CreatedAt = time.Now().Unix()
	}
	if req.UpdatedAt == 0 {
		req.UpdatedAt = req.CreatedAt
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payment_requests (id, payer_id, receiver_id, group_id, amount, status,
		     payment_address, payment_link, note, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.PayerID, req.ReceiverID, req.GroupID, req.Amount, string(req.Status),
		req.PaymentAddress, req.PaymentLink, req.Note, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment request: %w", err)
	}
	return nil
}

// GetPaymentRequest retrieves a payment request by ID.
func (s *SQLiteStore) GetPaymentRequest(ctx context.Context, requestID string) (*models.PaymentRequest, error) {
	return getPaymentRequest(ctx, s.db, requestID)
}

func getPaymentRequest(ctx context.Context, q querier, requestID string) (*models.PaymentRequest, error) {
	req, err := scanPaymentRequest(q.QueryRowContext(ctx,
		`SELECT `+paymentRequestColumns+` FROM payment_requests WHERE id = ?`, requestID))
	if isNoRows(err) {
		return nil, errs.Newf(errs.ErrNotFound, "payment request %s not found", requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment request: %w", err)
	}
	return req, nil
}

// ListPaymentRequests retrieves requests received (incoming) or sent by memberID.
func (s *SQLiteStore) ListPaymentRequests(ctx context.Context, memberID string, incoming bool, statuses []models.PaymentStatus, limit int) ([]*models.PaymentRequest, error) {
	if limit == 0 {
		limit = 50
	}

	column := "payer_id"
	if incoming {
		column = "receiver_id"
	}
	query := `SELECT ` + paymentRequestColumns + ` FROM payment_requests WHERE ` + column + ` = ?`
	args := []any{memberID}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	// LIMIT -1 is unbounded in SQLite.
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, max(limit, -1))

	rows, err := s.db.QueryContext(ctx, query, args...)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payment requests: %w", err)
	}
	return out, nil
}
