package pgstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/noot-app/nutrient-engine/internal/store"
)

// Store is the PostgreSQL storage backend
type Store struct {
	db  *gorm.DB
	log *slog.Logger
}

// Ensure Store implements store.Store
var _ store.Store = (*Store)(nil)

// Open connects to PostgreSQL and migrates the schema
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	s := &Store{db: db, log: logger}
	if err := s.migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}

	logger.Debug("Postgres store ready")
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	for _, model := range allModels() {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}
	return nil
}

// Close closes the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// HealthCheck pings the database
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("health check ping failed: %w", err)
	}
	return nil
}

// InTx runs fn inside a transaction
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(&txn{db: gtx})
	})
	return classify(err)
}

// classify wraps serialization failures and deadlocks in store.ErrTxConflict
func classify(err error) error {
	if err == nil || errors.Is(err, store.ErrTxConflict) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return fmt.Errorf("%w: %w", store.ErrTxConflict, err)
	}
	return err
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return fmt.Errorf("failed to query %s: %w", what, err)
}
