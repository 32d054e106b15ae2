package outbox

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/BrennanVollmar/vplm/internal/dbx"
	"github.com/BrennanVollmar/vplm/internal/models"
	"github.com/BrennanVollmar/vplm/internal/timex"
	"github.com/google/uuid"
)

// SQLiteRepository implements Repository using a DBTX so enqueues can share
// the transaction of the write that caused them.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, item *models.OutboxItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	payload := string(item.Payload)
	if payload == "" {
		payload = "null"
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox (id, entity_id, kind, op, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, item.EntityID, string(item.Kind), string(item.Op), payload, timex.Nanos(item.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to enqueue %s %s: %w", item.Op, item.Kind, err)
	}
	if seq, err := res.LastInsertId(); err == nil {
		item.Seq = seq
	}
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count outbox: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Pending(ctx context.Context, limit int) ([]*models.OutboxItem, error) {
	if limit <= 0 {
		return r.List(ctx)
	}
	return r.query(ctx, `SELECT seq, id, entity_id, kind, op, payload, created_at
		FROM outbox ORDER BY seq LIMIT ?`, limit)
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.OutboxItem, error) {
	return r.query(ctx, `SELECT seq, id, entity_id, kind, op, payload, created_at
		FROM outbox ORDER BY seq`)
}

func (r *SQLiteRepository) Remove(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to remove outbox item %s: %w", id, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra > 0, nil
}

// Restore re-queues items that are not queued yet, oldest first. Items that
// fail Validate are dropped since no push could ever clear them.
func (r *SQLiteRepository) Restore(ctx context.Context, items []*models.OutboxItem) (int, error) {
	sorted := make([]*models.OutboxItem, 0, len(items))
	for _, it := range items {
		if it != nil && it.Validate() == nil {
			sorted = append(sorted, it)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].Seq < sorted[j].Seq
	})

	added := 0
	for _, it := range sorted {
		payload := strings.TrimSpace(string(it.Payload))
		if payload == "" {
			payload = "null"
		}
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO outbox (id, entity_id, kind, op, payload, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			it.ID, it.EntityID, string(it.Kind), string(it.Op), payload, timex.Nanos(it.CreatedAt))
		if err != nil {
			return added, fmt.Errorf("failed to restore outbox item %s: %w", it.ID, err)
		}
		if ra, err := res.RowsAffected(); err == nil && ra > 0 {
			added++
		}
	}
	return added, nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]*models.OutboxItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select outbox: %w", err)
	}
	defer rows.Close()

	var items []*models.OutboxItem
	for rows.Next() {
		var (
			it        models.OutboxItem
			kind, op  string
			payload   string
			createdAt int64
		)
		if err := rows.Scan(&it.Seq, &it.ID, &it.EntityID, &kind, &op, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		it.Kind = models.Kind(kind)
		it.Op = models.Op(op)
		it.Payload = []byte(payload)
		it.CreatedAt = timex.FromNanos(createdAt)
		items = append(items, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox rows: %w", err)
	}
	return items, nil
}
