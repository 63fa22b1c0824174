// Package postgres opens the job store database through the pgx stdlib
// driver so sqlx can sit on top of it.
package postgres

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/romariotrain/media-pipeline/internal/media/domain"
)

// Pool sizes the connection pool. The API and every worker goroutine share
// it, so MaxOpen should cover the configured worker concurrency.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

var DefaultPool = Pool{
	MaxOpen:     25,
	MaxIdle:     5,
	MaxLifetime: time.Hour,
	MaxIdleTime: 5 * time.Minute,
}

func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	return ConnectWithPool(ctx, dsn, DefaultPool)
}

func ConnectWithPool(ctx context.Context, dsn string, pool Pool) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w: %w", domain.ErrStoreUnavailable, err)
	}

	db.SetMaxOpenConns(pool.MaxOpen)
	db.SetMaxIdleConns(pool.MaxIdle)
	db.SetConnMaxLifetime(pool.MaxLifetime)
	db.SetConnMaxIdleTime(pool.MaxIdleTime)

	return db, nil
}
