// Package pgremote is a remote.Client that writes straight into a Postgres
// database. Every collection shares one table keyed by (collection, id) with
// the row kept as jsonb.
package pgremote

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"

	"github.com/BrennanVollmar/vplm/internal/common"
	"github.com/BrennanVollmar/vplm/internal/remote"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Client implements remote.Client on Postgres.
type Client struct {
	db    *sql.DB
	owned bool
}

var _ remote.Client = (*Client)(nil)

// runMigrations is a seam for tests.
var runMigrations = func(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(embedded, "migrations")
	if err != nil {
		return err
	}
	p, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return err
	}
	_, err = p.Up(ctx)
	return err
}

// Open connects with the pgx stdlib driver and migrates the remote schema.
func Open(ctx context.Context, dsn string) (*Client, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	c, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	c.owned = true
	return c, nil
}

// New wraps an existing handle and migrates it. Close leaves db open.
func New(ctx context.Context, db *sql.DB) (*Client, error) {
	if err := runMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to migrate remote schema: %w", mapError(err))
	}
	return &Client{db: db}, nil
}

func (c *Client) Upsert(ctx context.Context, collection string, row json.RawMessage) error {
	id, err := remote.RowID(row)
	if err != nil {
		return fmt.Errorf("failed to read %s row id: %w", collection, err)
	}
	if id == "" {
		return fmt.Errorf("%s row without id", collection)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO remote_rows (collection, id, row, updated_at)
		VALUES ($1, $2, $3::jsonb, now())
		ON CONFLICT (collection, id) DO UPDATE
		SET row = EXCLUDED.row, updated_at = now()`,
		collection, id, string(row))
	if err != nil {
		return fmt.Errorf("failed to upsert %s %s: %w", collection, id, mapError(err))
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM remote_rows WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", collection, id, mapError(err))
	}
	return nil
}

// Fetch returns the most recently written rows first. limit <= 0 means all.
func (c *Client) Fetch(ctx context.Context, collection string, limit int) ([]json.RawMessage, error) {
	q := `SELECT row FROM remote_rows WHERE collection = $1 ORDER BY updated_at DESC, id`
	args := []any{collection}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", collection, mapError(err))
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", collection, err)
		}
		out = append(out, json.RawMessage(b))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", collection, mapError(err))
	}
	return out, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

func (c *Client) Close() error {
	if !c.owned {
		return nil
	}
	return c.db.Close()
}

// mapError turns driver failures into the remote sentinels: connection and
// timeout problems are ErrUnavailable, auth failures ErrUnauthorized.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57P"):
			return fmt.Errorf("%w: %w", common.ErrUnavailable, err)
		case strings.HasPrefix(pgErr.Code, "28"), pgErr.Code == "42501":
			return fmt.Errorf("%w: %w", common.ErrUnauthorized, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %w", common.ErrUnavailable, err)
	}
	return err
}
