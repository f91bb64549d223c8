// Package repository provides the reviewer decision ledger stored in Postgres
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/UnendingLoop/PhotoReview/internal/model"
	"github.com/UnendingLoop/PhotoReview/internal/repository/decisionpg"
	"github.com/avast/retry-go"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
)

// DecisionRepo - журнал решений ревьюера; состояние движка здесь не хранится
type DecisionRepo interface {
	Create(ctx context.Context, d *model.Decision) error
	GetList(ctx context.Context, req *model.ListRequest) ([]model.Decision, error)
}

func NewPostgresDecisionRepo(dbconn *dbpg.DB) DecisionRepo {
	return decisionpg.PostgresRepo{DB: dbconn}
}

// ConnectWithRetries открывает пул к Postgres; база в compose поднимается дольше приложения
func ConnectWithRetries(ctx context.Context, appConfig *config.Config, attempts uint, idle time.Duration) (*dbpg.DB, error) {
	dsn := appConfig.GetString("POSTGRES_DSN")
	if dsn == "" {
		return nil, errors.New("POSTGRES_DSN is empty")
	}

	var conn *dbpg.DB
	err := retry.Do(
		func() error {
			db, err := dbpg.New(dsn, nil, &dbpg.Options{
				MaxOpenConns:    5,
				MaxIdleConns:    5,
				ConnMaxLifetime: 10 * time.Minute,
			})
			if err != nil {
				return err
			}
			conn = db
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(idle),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("Failed to connect to PGDB (try #%d): %v\nWaiting %v before next retry...", n+1, err, idle)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to decisions DB: %w", err)
	}
	return conn, nil
}

// MigrateWithRetries накатывает миграции журнала; ErrNoChange - не ошибка
func MigrateWithRetries(ctx context.Context, db *sql.DB, migrationsPath string, attempts uint, idle time.Duration) error {
	return retry.Do(
		func() error { return runMigrate(db, migrationsPath) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(idle),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("Migration try #%d was unsuccessful: %v", n+1, err)
		}),
	)
}

func runMigrate(db *sql.DB, migrationsPath string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}

	absPath, err := filepath.Abs(migrationsPath)
	if err != nil {
		return err
	}

	sourceURL := "file://" + absPath
	log.Println("Running migrations from:", sourceURL)

	m, err := migrate.NewWithDatabaseInstance(
		sourceURL,
		"postgres",
		driver,
	)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	log.Println("Database migrations applied successfully")
	return nil
}
