package backups

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/BrennanVollmar/vplm/internal/dbx"
	"github.com/BrennanVollmar/vplm/internal/timex"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, rec *Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO backup_history (id, created_at, reason, checksum, data)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ID, timex.Nanos(rec.CreatedAt), rec.Reason, rec.Checksum, rec.Data)
	if err != nil {
		return fmt.Errorf("failed to insert backup %s: %w", rec.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, created_at, reason, checksum, data
		FROM backup_history ORDER BY created_at DESC, seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to select backups: %w", err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate backups: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, created_at, reason, checksum, data
		FROM backup_history WHERE id = ?`, id)
	rec, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *SQLiteRepository) Trim(ctx context.Context, keep int) ([]string, error) {
	if keep < 0 {
		keep = 0
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM backup_history
		ORDER BY created_at DESC, seq DESC
		LIMIT -1 OFFSET ?`, keep)
	if err != nil {
		return nil, fmt.Errorf("failed to select backups to evict: %w", err)
	}
	var evict []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		evict = append(evict, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for _, id := range evict {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM backup_history WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("failed to evict backup %s: %w", id, err)
		}
	}
	return evict, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM backup_history`); err != nil {
		return fmt.Errorf("failed to clear backups: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*Record, error) {
	var (
		rec       Record
		createdAt int64
	)
	if err := s.Scan(&rec.ID, &createdAt, &rec.Reason, &rec.Checksum, &rec.Data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan backup row: %w", err)
	}
	rec.CreatedAt = timex.FromNanos(createdAt)
	return &rec, nil
}
