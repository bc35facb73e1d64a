package duckstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/noot-app/nutrient-engine/internal/store"
)

// Store is the DuckDB storage backend
type Store struct {
	db  *sql.DB
	log *slog.Logger

	// DuckDB aborts one of two concurrent writers to the same row; in-process
	// transactions take turns instead
	writeMu sync.Mutex
}

// Ensure Store implements store.Store
var _ store.Store = (*Store)(nil)

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens (or creates) the database at path and applies the schema.
// An empty path opens a private in-memory database.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}

	s := &Store{db: db, log: logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("DuckDB store ready", "path", path)
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// HealthCheck verifies the database answers queries
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&n); err != nil {
		return fmt.Errorf("health check query failed: %w", err)
	}
	return nil
}

// InTx runs fn inside a transaction
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}

	if err := fn(&txn{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Warn("Rollback failed", "error", rbErr)
		}
		return classify(err)
	}

	if err := sqlTx.Commit(); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// classify wraps DuckDB write-write conflicts in store.ErrTxConflict.
// DuckDB reports them as TransactionContext errors mentioning a conflict.
func classify(err error) error {
	if err == nil || errors.Is(err, store.ErrTxConflict) {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "conflict") && strings.Contains(msg, "transaction") {
		return fmt.Errorf("%w: %w", store.ErrTxConflict, err)
	}
	return err
}

// dateArg renders a calendar day for CAST(? AS DATE)
func dateArg(day time.Time) string {
	return day.Format("2006-01-02")
}

// placeholders returns "?, ?, ..." with n markers
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
