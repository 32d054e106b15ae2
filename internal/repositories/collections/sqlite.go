package collections

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/BrennanVollmar/vplm/internal/blob"
	"github.com/BrennanVollmar/vplm/internal/dbx"
	"github.com/BrennanVollmar/vplm/internal/models"
	"github.com/BrennanVollmar/vplm/internal/timex"
)

// SQLiteRepository implements Repository over one table.
type SQLiteRepository[T any, P Ptr[T]] struct {
	db    dbx.DBTX
	table string
}

// NewSQLiteRepository binds a repository to table. The table name is not
// escaped and must come from code, never from input.
func NewSQLiteRepository[T any, P Ptr[T]](db dbx.DBTX, table string) *SQLiteRepository[T, P] {
	return &SQLiteRepository[T, P]{db: db, table: table}
}

// Table returns the backing table name.
func (r *SQLiteRepository[T, P]) Table() string {
	return r.table
}

func (r *SQLiteRepository[T, P]) Put(ctx context.Context, e P) error {
	if e == nil || e.GetID() == "" {
		return fmt.Errorf("failed to upsert %s: missing id", r.table)
	}

	var payload any
	var mimeType sql.NullString
	if bc, ok := any(e).(models.BlobCarrier); ok && !bc.GetBlob().Empty() {
		ref := bc.GetBlob().WithDefaultMime(bc.DefaultMime())
		b, err := ref.Bytes()
		if err != nil {
			return err
		}
		if len(b) > 0 {
			payload = b
			mimeType = sql.NullString{String: ref.MimeType(), Valid: true}
		}
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", r.table, err)
	}

	query := fmt.Sprintf(`INSERT INTO %[1]s (id, job_id, created_at, data, payload, mime_type)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET job_id = excluded.job_id,
			created_at = excluded.created_at,
			data = excluded.data,
			payload = COALESCE(excluded.payload, %[1]s.payload),
			mime_type = COALESCE(excluded.mime_type, %[1]s.mime_type)`, r.table)

	_, err = r.db.ExecContext(ctx, query,
		e.GetID(), e.GetJobID(), timex.Nanos(e.GetCreatedAt()), string(data), payload, mimeType)
	if err != nil {
		return fmt.Errorf("failed to upsert %s: %w", r.table, err)
	}
	return nil
}

func (r *SQLiteRepository[T, P]) Get(ctx context.Context, id string) (P, error) {
	query := fmt.Sprintf(`SELECT data, payload, mime_type FROM %s WHERE id = ?`, r.table)
	row := r.db.QueryRowContext(ctx, query, id)

	var data string
	var payload []byte
	var mimeType sql.NullString
	err := row.Scan(&data, &payload, &mimeType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s[%s]: %w", r.table, id, err)
	}
	return r.decode(data, payload, mimeType)
}

func (r *SQLiteRepository[T, P]) List(ctx context.Context) ([]P, error) {
	query := fmt.Sprintf(`SELECT data, payload, mime_type FROM %s ORDER BY created_at, id`, r.table)
	return r.query(ctx, query)
}

func (r *SQLiteRepository[T, P]) ListByJob(ctx context.Context, jobID string) ([]P, error) {
	query := fmt.Sprintf(`SELECT data, payload, mime_type FROM %s WHERE job_id = ? ORDER BY created_at, id`, r.table)
	return r.query(ctx, query, jobID)
}

func (r *SQLiteRepository[T, P]) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, r.table), id)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s[%s]: %w", r.table, id, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra > 0, nil
}

func (r *SQLiteRepository[T, P]) DeleteByJob(ctx context.Context, jobID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE job_id = ? ORDER BY created_at, id`, r.table), jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s of job %s: %w", r.table, jobID, err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE job_id = ?`, r.table), jobID); err != nil {
		return nil, fmt.Errorf("failed to delete %s of job %s: %w", r.table, jobID, err)
	}
	return ids, nil
}

func (r *SQLiteRepository[T, P]) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, r.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", r.table, err)
	}
	return n, nil
}

func (r *SQLiteRepository[T, P]) query(ctx context.Context, query string, args ...any) ([]P, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", r.table, err)
	}
	defer rows.Close()

	var result []P
	for rows.Next() {
		var data string
		var payload []byte
		var mimeType sql.NullString
		if err := rows.Scan(&data, &payload, &mimeType); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", r.table, err)
		}
		e, err := r.decode(data, payload, mimeType)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", r.table, err)
	}
	return result, nil
}

func (r *SQLiteRepository[T, P]) decode(data string, payload []byte, mimeType sql.NullString) (P, error) {
	e := P(new(T))
	if err := json.Unmarshal([]byte(data), e); err != nil {
		return nil, fmt.Errorf("failed to decode %s record: %w", r.table, err)
	}
	if bc, ok := any(e).(models.BlobCarrier); ok && len(payload) > 0 {
		bc.SetBlob(blob.FromBytes(payload, mimeType.String).WithDefaultMime(bc.DefaultMime()))
	}
	return e, nil
}
