package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	pgMaxOpenConns = 10
	pgMaxIdleConns = 2
	pgConnLifetime = time.Hour
	pgPingTimeout  = 5 * time.Second
)

// PostgresStore persists the journal to PostgreSQL through the pgx driver.
type PostgresStore struct {
	sqlStore
}

// NewPostgresStore connects to dsn, validates the connection and ensures schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("journal: empty postgres DSN")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(pgMaxOpenConns)
	db.SetMaxIdleConns(pgMaxIdleConns)
	db.SetConnMaxLifetime(pgConnLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pgPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: ping postgres: %w", err)
	}
	s := &PostgresStore{sqlStore{db: db, bind: dollar}}
	if err := s.migrate(ctx, "BIGSERIAL PRIMARY KEY"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}
