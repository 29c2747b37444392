// Package postgres provides a pgx-backed implementation of storage.Store.
//
// Member rows are locked with select ... for update in ascending id order and
// payment requests with a single-row lock, so concurrent engine calls are safe
// across any number of pooled connections. Read snapshots use repeatable read.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mmynk/splitledger/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store holds a pgx connection pool. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Open establishes a pgx pool using the provided connection string and
// applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// WithTx runs fn in a read committed transaction.
func (s *Store) WithTx(ctx context.Context, fn func(storage.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Snapshot runs fn in a repeatable read, read-only transaction.
func (s *Store) Snapshot(ctx context.Context, fn func(storage.Reader) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	return fn(&pgReader{q: tx})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func statusStrings[S ~string](in []S) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

// keyOwner must match the expression in wallet_tx_idempotency.
const keyOwner = `(case when kind = 'deposit' then to_member_id else from_member_id end)`

const schema = `
create table if not exists members (
    id text primary key,
    name text not null,
    email text not null default '',
    payment_handle text not null default '',
    wallet_balance bigint not null default 0 check (wallet_balance >= 0),
    created_at bigint not null
);

create table if not exists groups (
    id text primary key,
    name text not null,
    created_at bigint not null
);

create table if not exists group_members (
    group_id text not null references groups(id) on delete cascade,
    member_id text not null references members(id),
    primary key (group_id, member_id)
);

create table if not exists expenses (
    seq bigserial,
    id text primary key,
    group_id text not null references groups(id),
    payer_id text not null references members(id),
    title text not null,
    description text not null default '',
    amount bigint not null check (amount > 0),
    policy text not null,
    created_at bigint not null,
    updated_at bigint not null,
    deleted_at bigint not null default 0
);

create table if not exists expense_splits (
    seq bigserial,
    expense_id text not null references expenses(id) on delete cascade,
    member_id text not null references members(id),
    share_amount bigint not null check (share_amount >= 0),
    owed_amount bigint not null check (owed_amount >= 0),
    settled boolean not null default false,
    primary key (expense_id, member_id)
);

create table if not exists wallet_transactions (
    seq bigserial,
    id text primary key,
    kind text not null,
    from_member_id text not null default '',
    to_member_id text not null references members(id),
    amount bigint not null check (amount > 0),
    status text not null,
    from_balance_before bigint not null default 0,
    to_balance_before bigint not null default 0,
    from_balance_after bigint not null default 0,
    to_balance_after bigint not null default 0,
    group_id text not null default '',
    expense_id text not null default '',
    note text not null default '',
    idempotency_key text not null default '',
    failure_reason text not null default '',
    splits_settled bigint not null default 0,
    created_at bigint not null,
    completed_at bigint not null default 0
);

create table if not exists payment_requests (
    seq bigserial,
    id text primary key,
    payer_id text not null references members(id),
    receiver_id text not null references members(id),
    group_id text not null default '',
    amount bigint not null check (amount > 0),
    status text not null,
    payment_address text not null,
    payment_link text not null,
    note text not null default '',
    created_at bigint not null,
    payer_confirmed_at bigint not null default 0,
    approved_at bigint not null default 0,
    rejected_at bigint not null default 0,
    updated_at bigint not null
);

create table if not exists notifications (
    seq bigserial,
    id text primary key,
    member_id text not null references members(id),
    kind text not null,
    title text not null,
    message text not null,
    data bytea,
    read boolean not null default false,
    created_at bigint not null
);

create index if not exists group_members_member_idx on group_members(member_id);
create index if not exists expenses_group_idx on expenses(group_id);
create index if not exists expense_splits_member_idx on expense_splits(member_id);
create unique index if not exists wallet_tx_idempotency
    on wallet_transactions (kind, (case when kind = 'deposit' then to_member_id else from_member_id end), idempotency_key)
    where idempotency_key <> '';
create index if not exists wallet_tx_from_idx on wallet_transactions(from_member_id);
create index if not exists wallet_tx_to_idx on wallet_transactions(to_member_id);
create index if not exists payment_requests_receiver_idx on payment_requests(receiver_id, status);
create index if not exists payment_requests_payer_idx on payment_requests(payer_id);
create index if not exists notifications_member_idx on notifications(member_id);
`
