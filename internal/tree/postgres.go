package tree

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"admin-chat/internal/db"

	"go.uber.org/zap"
)

// NewPostgres stores leaves as rows of tree_nodes. Writes raise
// pg_notify(tree_changed, path) inside their transaction, so listeners only
// hear about committed changes.
func NewPostgres(ctx context.Context, database *db.Database, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := database.AutoMigrate(ctx); err != nil {
		return nil, err
	}
	return open(&postgresBackend{database: database, db: database.Conn, log: log}, log)
}

type postgresBackend struct {
	database *db.Database
	db       *sql.DB
	log      *zap.Logger
}

func (p *postgresBackend) scan(ctx context.Context, path string, withValues bool) (map[string][]byte, error) {
	cols := "path, NULL::bytea"
	if withValues {
		cols = "path, value::text"
	}
	var (
		rows *sql.Rows
		err  error
	)
	if path == "" {
		rows, err = p.db.QueryContext(ctx, `SELECT `+cols+` FROM tree_nodes`)
	} else {
		rows, err = p.db.QueryContext(ctx,
			`SELECT `+cols+` FROM tree_nodes WHERE path = $1 OR starts_with(path, $2)`,
			path, path+separator)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var full string
		var raw []byte
		if err := rows.Scan(&full, &raw); err != nil {
			return nil, err
		}
		out[full] = raw
	}
	return out, rows.Err()
}

func (p *postgresBackend) replace(ctx context.Context, path string, leaves map[string][]byte) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := lockSubtree(ctx, tx, path); err != nil {
		return fmt.Errorf("lock subtree: %w", err)
	}

	if path == "" {
		_, err = tx.ExecContext(ctx, `DELETE FROM tree_nodes`)
	} else {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM tree_nodes WHERE path = $1 OR starts_with(path, $2) OR path = ANY($3)`,
			path, path+separator, ancestors(path))
	}
	if err != nil {
		return fmt.Errorf("clear subtree: %w", err)
	}

	for full, raw := range leaves {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tree_nodes (path, value, updated_at) VALUES ($1, $2::jsonb, NOW())
			 ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
			full, string(raw)); err != nil {
			return fmt.Errorf("insert %s: %w", full, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, db.NotifyChannel, path); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return tx.Commit()
}

// treeLockKey namespaces the advisory locks taken by writers.
const treeLockKey = 0x74726565

// lockSubtree serializes writers whose paths overlap. Overlapping paths share
// their first segment, so that segment is locked for the rest of the
// transaction. A root write excludes every other writer.
func lockSubtree(ctx context.Context, tx *sql.Tx, path string) error {
	if path == "" {
		_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(treeLockKey))
		return err
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock_shared($1)`, int64(treeLockKey)); err != nil {
		return err
	}
	top, _, _ := strings.Cut(path, separator)
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, hashtext($2))`, int32(treeLockKey), top)
	return err
}

func (p *postgresBackend) changes(ctx context.Context) (<-chan string, error) {
	conn, err := p.database.Listen(ctx, db.NotifyChannel)
	if err != nil {
		return nil, err
	}

	out := make(chan string)
	go func() {
		defer close(out)
		backoff := time.Second
		for {
			n, err := conn.WaitForNotification(ctx)
			if err != nil {
				conn.Close(context.Background())
				if ctx.Err() != nil {
					return
				}
				p.log.Warn("postgres listener lost, reconnecting", zap.Error(err), zap.Duration("backoff", backoff))
				for {
					select {
					case <-ctx.Done():
						return
					case <-time.After(backoff):
					}
					if conn, err = p.database.Listen(ctx, db.NotifyChannel); err == nil {
						backoff = time.Second
						break
					}
					backoff = min(backoff*2, 30*time.Second)
				}
				// writes made while disconnected were never announced
				select {
				case out <- "":
				case <-ctx.Done():
					return
				}
				continue
			}
			select {
			case out <- n.Payload:
			case <-ctx.Done():
				conn.Close(context.Background())
				return
			}
		}
	}()
	return out, nil
}

func (p *postgresBackend) close() error { return nil }
