package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"spadesk/internal/model"
)

// GetSyncMeta returns the drafting marker for scope, or model.ErrNotFound.
func (q *Queries) GetSyncMeta(ctx context.Context, scope string) (*model.SyncMeta, error) {
	var m model.SyncMeta
	err := q.q.QueryRowContext(ctx, `SELECT scope, cutoff, batch_id, created_at FROM sync_meta WHERE scope = ?`, scope).
		Scan(&m.Scope, &m.Cutoff, &m.BatchID, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sync meta %s: %w", scope, model.ErrNotFound)
	}
	if err != nil {
		return nil, classify("get sync meta", err)
	}
	m.Cutoff = m.Cutoff.UTC()
	return &m, nil
}

// UpsertSyncMeta records a new import batch for the scope, replacing any earlier marker.
func (q *Queries) UpsertSyncMeta(ctx context.Context, m *model.SyncMeta) error {
	now := time.Now().UTC()
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO sync_meta (scope, cutoff, batch_id, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (scope) DO UPDATE SET
			cutoff = excluded.cutoff,
			batch_id = excluded.batch_id,
			created_at = excluded.created_at`,
		m.Scope, m.Cutoff.UTC(), m.BatchID, now)
	if err != nil {
		return classify("upsert sync meta", err)
	}
	m.CreatedAt = now
	return nil
}

// DeleteSyncMeta removes the marker and reports how many rows went away.
func (q *Queries) DeleteSyncMeta(ctx context.Context, scope string) (int64, error) {
	res, err := q.q.ExecContext(ctx, `DELETE FROM sync_meta WHERE scope = ?`, scope)
	if err != nil {
		return 0, classify("delete sync meta", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ListSyncMeta returns every scope currently drafting.
func (q *Queries) ListSyncMeta(ctx context.Context) ([]model.SyncMeta, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT scope, cutoff, batch_id, created_at FROM sync_meta ORDER BY scope`)
	if err != nil {
		return nil, classify("list sync meta", err)
	}
	defer rows.Close()

	var out []model.SyncMeta
	for rows.Next() {
		var m model.SyncMeta
		if err := rows.Scan(&m.Scope, &m.Cutoff, &m.BatchID, &m.CreatedAt); err != nil {
			return nil, classify("list sync meta", err)
		}
		m.Cutoff = m.Cutoff.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list sync meta", err)
	}
	return out, nil
}
