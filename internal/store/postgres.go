// Package store implements the request record persistence over PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/retouchlab/retouchops/internal/config"
	"github.com/retouchlab/retouchops/internal/domain"
)

// Querier is the subset of pgxpool.Pool the store needs. pgxmock satisfies
// it in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// psql builds queries with PostgreSQL $n placeholders.
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// wrapDBErr tags timeouts and connection failures as domain.ErrTransport so
// callers can tell a retryable outage from a data error.
func wrapDBErr(err error) error {
	var connErr *pgconn.ConnectError
	if errors.Is(err, context.DeadlineExceeded) ||
		pgconn.Timeout(err) ||
		pgconn.SafeToRetry(err) ||
		errors.As(err, &connErr) {
		return fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	return err
}

const requestColumns = "id, email, description, original_image_key, payment_proof_key, edited_image_key, status, submitted_at, completed_at"

// Store persists request records.
type Store struct {
	db Querier
}

// New creates a Store on top of an established connection.
func New(db Querier) *Store {
	return &Store{db: db}
}

// NewPool opens a pgx connection pool from the database configuration and
// verifies connectivity with a bounded ping.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Insert adds a new request record.
func (s *Store) Insert(ctx context.Context, req *domain.Request) error {
	sql, args, err := psql.Insert("requests").
		Columns("id", "email", "description", "original_image_key", "payment_proof_key", "status", "submitted_at").
		Values(req.ID, req.Email, req.Description, req.OriginalImageKey, req.PaymentProofKey, req.Status, req.SubmittedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := s.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert request %s: %w", req.ID, wrapDBErr(err))
	}
	return nil
}

// GetByID fetches a single request. Returns domain.ErrNotFound for an
// unknown id.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*domain.Request, error) {
	sql, args, err := psql.Select(requestColumns).
		From("requests").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	req, err := scanRequest(s.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("request %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get request %s: %w", id, wrapDBErr(err))
	}
	return req, nil
}

// List returns all requests, newest submission first.
func (s *Store) List(ctx context.Context) ([]domain.Request, error) {
	sql, args, err := psql.Select(requestColumns).
		From("requests").
		OrderBy("submitted_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", wrapDBErr(err))
	}
	defer rows.Close()

	requests := []domain.Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list requests: %w", wrapDBErr(err))
	}
	return requests, nil
}

// Update applies the non-nil fields of upd to one record as a single
// statement. Returns domain.ErrNotFound when no row matched.
func (s *Store) Update(ctx context.Context, id uuid.UUID, upd domain.RequestUpdate) error {
	builder := psql.Update("requests").Where(squirrel.Eq{"id": id})

	set := false
	if upd.EditedImageKey != nil {
		builder = builder.Set("edited_image_key", *upd.EditedImageKey)
		set = true
	}
	if upd.Status != nil {
		builder = builder.Set("status", *upd.Status)
		set = true
	}
	if upd.CompletedAt != nil {
		builder = builder.Set("completed_at", *upd.CompletedAt)
		set = true
	}
	if !set {
		return nil
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update request %s: %w", id, wrapDBErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("request %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Ping reports database reachability for the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func scanRequest(row pgx.Row) (*domain.Request, error) {
	var req domain.Request
	err := row.Scan(
		&req.ID,
		&req.Email,
		&req.Description,
		&req.OriginalImageKey,
		&req.PaymentProofKey,
		&req.EditedImageKey,
		&req.Status,
		&req.SubmittedAt,
		&req.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}
