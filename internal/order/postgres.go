package order

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DBTX is the subset of pgxpool.Pool used by PostgresStore.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	selectOrderSQL = `SELECT id, amount, currency, receipt, status, payment_id, attempts, created_at, updated_at
FROM payment_orders WHERE id = $1`
	insertOrderSQL = `INSERT INTO payment_orders (id, amount, currency, receipt, status, payment_id, attempts, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING`
	updateOrderSQL = `UPDATE payment_orders
SET status = $4, payment_id = $5, attempts = $6, updated_at = $7
WHERE id = $1 AND status = $2 AND attempts = $3`
)

// maxCASAttempts bounds the compare-and-swap loop in Transition.
const maxCASAttempts = 5

// PostgresStore keeps orders in the payment_orders table. Transitions use a
// compare-and-swap on (status, attempts) and retry when another writer wins.
type PostgresStore struct {
	DB      DBTX
	nowFunc func() time.Time
}

// NewPostgresStore wraps a pool (or any DBTX).
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{DB: db, nowFunc: time.Now}
}

func (s *PostgresStore) now() time.Time {
	if s.nowFunc == nil {
		return time.Now().UTC()
	}
	return s.nowFunc().UTC()
}

func (s *PostgresStore) Create(ctx context.Context, o Order) error {
	now := s.now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	if o.Status == "" {
		o.Status = StatusCreated
	}
	inserted, err := s.insert(ctx, o)
	if err != nil {
		return err
	}
	if !inserted {
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) insert(ctx context.Context, o Order) (bool, error) {
	tag, err := s.DB.Exec(ctx, insertOrderSQL,
		o.ID, o.Amount, o.Currency, o.Receipt, string(o.Status), o.PaymentID, o.Attempts, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("order: insert: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Order, error) {
	var (
		o      Order
		status string
	)
	err := s.DB.QueryRow(ctx, selectOrderSQL, id).Scan(
		&o.ID, &o.Amount, &o.Currency, &o.Receipt, &status, &o.PaymentID, &o.Attempts, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("order: get: %w", err)
	}
	o.Status = Status(status)
	return o, nil
}

func (s *PostgresStore) Transition(ctx context.Context, id string, target Status, paymentID string) (Change, error) {
	if err := validate(id, target); err != nil {
		return Change{}, err
	}
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		current, err := s.Get(ctx, id)
		now := s.now()
		if errors.Is(err, ErrNotFound) {
			o := seed(id, target, paymentID, now)
			inserted, err := s.insert(ctx, o)
			if err != nil {
				return Change{}, err
			}
			if inserted {
				return Change{Order: o, Changed: true}, nil
			}
			continue
		}
		if err != nil {
			return Change{}, err
		}
		next, changed, mutated := apply(current, target, paymentID, now)
		if !mutated {
			return Change{Order: current, From: current.Status}, nil
		}
		tag, err := s.DB.Exec(ctx, updateOrderSQL,
			id, string(current.Status), current.Attempts, string(next.Status), next.PaymentID, next.Attempts, next.UpdatedAt)
		if err != nil {
			return Change{}, fmt.Errorf("order: update: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return Change{Order: next, From: current.Status, Changed: changed}, nil
		}
	}
	return Change{}, fmt.Errorf("%w: transition %s to %s", ErrConflict, id, target)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	var one int
	return s.DB.QueryRow(ctx, "SELECT 1").Scan(&one)
}

// Migrate applies the embedded schema migrations to databaseURL.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(databaseURL))
	if err != nil {
		return fmt.Errorf("migrations init: %w", err)
	}
	defer func() { _, _ = m.Close() }()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations up: %w", err)
	}
	return nil
}

// migrateURL rewrites a postgres URL to the scheme the pgx/v5 migrate driver registers.
func migrateURL(databaseURL string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(databaseURL, scheme) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, scheme)
		}
	}
	return databaseURL
}
