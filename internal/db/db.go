package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// NotifyChannel carries changed tree paths between server instances.
const NotifyChannel = "tree_changed"

// Database pairs the pooled connection used for reads and writes with the
// DSN needed to open dedicated listener connections.
type Database struct {
	Conn *sql.DB
	dsn  string
}

func NewDatabase(ctx context.Context, dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn, dsn: dsn}, nil
}

// AutoMigrate creates the leaf table backing the tree store. Every row is
// one scalar at a full path, e.g. chats/u1/messages/m1/isRead -> true.
func (d *Database) AutoMigrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tree_nodes (
            path TEXT PRIMARY KEY,
            value JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,

		`CREATE INDEX IF NOT EXISTS tree_nodes_path_prefix_idx
            ON tree_nodes (path text_pattern_ops)`,
	}

	for _, query := range queries {
		if _, err := d.Conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Listen opens a dedicated connection subscribed to channel. LISTEN is tied
// to a session, so it can't go through the pool.
func (d *Database) Listen(ctx context.Context, channel string) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, d.dsn)
	if err != nil {
		return nil, fmt.Errorf("connect listener: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("listen %s: %w", channel, err)
	}
	return conn, nil
}

func (d *Database) Close() error {
	return d.Conn.Close()
}
