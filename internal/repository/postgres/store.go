// Package postgres is the pgx-backed OrderRepository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ordermesh/ordersvc/internal/domain"
)

// PoolOptions tunes the connection pool. Zero values pick defaults.
type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	ConnectTimeout  time.Duration
}

type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect opens a pool and verifies the server answers.
func Connect(ctx context.Context, dsn string, opts PoolOptions, logger *slog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	cfg.MaxConnLifetime = 5 * time.Minute
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.ConnectTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger.With("component", "postgres")}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id          BIGSERIAL PRIMARY KEY,
	user_id     BIGINT NOT NULL,
	product_id  VARCHAR(50) NOT NULL,
	quantity    INT NOT NULL CHECK (quantity > 0),
	total_price NUMERIC(10,2) NOT NULL CHECK (total_price > 0),
	status      VARCHAR(20) NOT NULL DEFAULT 'pending',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id);
`

// EnsureSchema creates the orders table and its index when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return &domain.PersistenceError{Op: "migrate", Err: err}
	}
	s.logger.Info("schema ready")
	return nil
}

const columns = `id, user_id, product_id, quantity, total_price, status, created_at, updated_at`

func (s *Store) Create(ctx context.Context, order *domain.Order) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO orders (user_id, product_id, quantity, total_price, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		 RETURNING `+columns,
		order.UserID, order.ProductID, order.Quantity, order.TotalPrice, string(domain.StatusPending),
	)
	created, err := scanOrder(row)
	if err != nil {
		return translate("insert", err)
	}
	*order = created
	return nil
}

func (s *Store) GetForUser(ctx context.Context, userID, orderID int64) (*domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+columns+` FROM orders WHERE id = $1 AND user_id = $2`, orderID, userID)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, translate("select", err)
	}
	return &order, nil
}

func (s *Store) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+columns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, translate("select", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, translate("scan", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("select", err)
	}
	return orders, nil
}

// Ping reports whether the database answers, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o      domain.Order
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.ProductID, &o.Quantity, &o.TotalPrice, &status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	if !o.Status.Valid() {
		return domain.Order{}, fmt.Errorf("order %d: unknown status %q", o.ID, status)
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

// translate wraps driver failures so callers see a PersistenceError; the
// SQLSTATE is kept for logs.
func translate(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &domain.PersistenceError{
			Op:  op,
			Err: fmt.Errorf("%s (SQLSTATE %s, constraint %q): %w", pgErr.Message, pgErr.Code, pgErr.ConstraintName, err),
		}
	}
	return &domain.PersistenceError{Op: op, Err: err}
}
