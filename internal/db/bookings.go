package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"spadesk/internal/model"
)

const bookingColumns = `id, service_id, service_name, staff_id, resource_id, start_at, end_at, status,
	combo_link_id, is_combo_main, is_locked, client_name, import_scope, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var (
		b       model.Booking
		staffID sql.NullInt64
		linkID  sql.NullString
	)
	err := row.Scan(
		&b.ID, &b.ServiceID, &b.ServiceName, &staffID, &b.ResourceID, &b.StartAt, &b.EndAt, &b.Status,
		&linkID, &b.IsComboMain, &b.IsLocked, &b.ClientName, &b.ImportScope, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if staffID.Valid {
		id := staffID.Int64
		b.StaffID = &id
	}
	b.ComboLinkID = linkID.String
	b.StartAt = b.StartAt.UTC()
	b.EndAt = b.EndAt.UTC()
	return &b, nil
}

func (q *Queries) queryBookings(ctx context.Context, op, query string, args ...any) ([]model.Booking, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

func nullStaff(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// InsertBooking stores b and fills its ID and timestamps.
func (q *Queries) InsertBooking(ctx context.Context, b *model.Booking) error {
	if !b.StartAt.Before(b.EndAt) {
		return model.ErrInvalidInterval
	}
	now := time.Now().UTC()
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO bookings (service_id, service_name, staff_id, resource_id, start_at, end_at, status,
			combo_link_id, is_combo_main, is_locked, client_name, import_scope, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ServiceID, b.ServiceName, nullStaff(b.StaffID), b.ResourceID, b.StartAt.UTC(), b.EndAt.UTC(), b.Status,
		nullString(b.ComboLinkID), b.IsComboMain, b.IsLocked, b.ClientName, b.ImportScope, now, now,
	)
	if err != nil {
		return classify("insert booking", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return classify("insert booking", err)
	}
	b.ID = id
	b.CreatedAt = now
	b.UpdatedAt = now
	return nil
}

// UpdateBooking rewrites every mutable column of b.
func (q *Queries) UpdateBooking(ctx context.Context, b *model.Booking) error {
	if !b.StartAt.Before(b.EndAt) {
		return model.ErrInvalidInterval
	}
	now := time.Now().UTC()
	res, err := q.q.ExecContext(ctx, `
		UPDATE bookings SET service_id = ?, service_name = ?, staff_id = ?, resource_id = ?, start_at = ?,
			end_at = ?, status = ?, combo_link_id = ?, is_combo_main = ?, is_locked = ?, client_name = ?,
			import_scope = ?, updated_at = ?
		WHERE id = ?`,
		b.ServiceID, b.ServiceName, nullStaff(b.StaffID), b.ResourceID, b.StartAt.UTC(), b.EndAt.UTC(), b.Status,
		nullString(b.ComboLinkID), b.IsComboMain, b.IsLocked, b.ClientName, b.ImportScope, now, b.ID,
	)
	if err != nil {
		return classify("update booking", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("booking %d: %w", b.ID, model.ErrNotFound)
	}
	b.UpdatedAt = now
	return nil
}

// GetBooking loads one row by id.
func (q *Queries) GetBooking(ctx context.Context, id int64) (*model.Booking, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, classify("get booking", err)
	}
	return b, nil
}

// ListComboLegs returns every row sharing linkID.
func (q *Queries) ListComboLegs(ctx context.Context, linkID string) ([]model.Booking, error) {
	return q.queryBookings(ctx, "list combo legs",
		`SELECT `+bookingColumns+` FROM bookings WHERE combo_link_id = ? ORDER BY is_combo_main DESC, id`, linkID)
}

// GetComboPair loads both legs of a combo and validates their shape.
func (q *Queries) GetComboPair(ctx context.Context, linkID string) (model.ComboPair, error) {
	rows, err := q.ListComboLegs(ctx, linkID)
	if err != nil {
		return model.ComboPair{}, err
	}
	if len(rows) == 0 {
		return model.ComboPair{}, fmt.Errorf("combo %s: %w", linkID, model.ErrNotFound)
	}
	return model.NewComboPair(rows)
}

// ListOverlapping returns rows on resourceID that block [start, end). drafts selects the
// sandbox: draft rows only see other drafts, live rows only see live rows.
func (q *Queries) ListOverlapping(ctx context.Context, resourceID string, start, end time.Time, drafts bool, excludeIDs ...int64) ([]model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE resource_id = ? AND status != ? AND start_at < ? AND end_at > ?`
	args := []any{resourceID, model.StatusCancelled, end.UTC(), start.UTC()}
	if drafts {
		query += ` AND status = ?`
	} else {
		query += ` AND status != ?`
	}
	args = append(args, model.StatusSyncDraft)
	if len(excludeIDs) > 0 {
		query += ` AND id NOT IN (` + placeholders(len(excludeIDs)) + `)`
		for _, id := range excludeIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY start_at`
	return q.queryBookings(ctx, "list overlapping", query, args...)
}

// ListBookingsInRange returns rows starting inside [from, to). Cancelled rows are skipped.
func (q *Queries) ListBookingsInRange(ctx context.Context, from, to time.Time, includeDrafts bool) ([]model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE start_at >= ? AND start_at < ? AND status != ?`
	args := []any{from.UTC(), to.UTC(), model.StatusCancelled}
	if !includeDrafts {
		query += ` AND status != ?`
		args = append(args, model.StatusSyncDraft)
	}
	query += ` ORDER BY start_at, resource_id`
	return q.queryBookings(ctx, "list bookings", query, args...)
}

// ListDrafts returns draft rows starting inside [from, to).
func (q *Queries) ListDrafts(ctx context.Context, from, to time.Time) ([]model.Booking, error) {
	return q.queryBookings(ctx, "list drafts", `SELECT `+bookingColumns+` FROM bookings
		WHERE status = ? AND start_at >= ? AND start_at < ? ORDER BY start_at, resource_id`,
		model.StatusSyncDraft, from.UTC(), to.UTC())
}

// CountDrafts reports total and locked draft rows in [from, to).
func (q *Queries) CountDrafts(ctx context.Context, from, to time.Time) (total, locked int, err error) {
	err = q.q.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_locked THEN 1 ELSE 0 END), 0)
		FROM bookings WHERE status = ? AND start_at >= ? AND start_at < ?`,
		model.StatusSyncDraft, from.UTC(), to.UTC(),
	).Scan(&total, &locked)
	if err != nil {
		return 0, 0, classify("count drafts", err)
	}
	return total, locked, nil
}

// DeleteBooking removes one row.
func (q *Queries) DeleteBooking(ctx context.Context, id int64) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return classify("delete booking", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("booking %d: %w", id, model.ErrNotFound)
	}
	return nil
}

// DeleteComboLegs removes every row sharing linkID.
func (q *Queries) DeleteComboLegs(ctx context.Context, linkID string) (int64, error) {
	res, err := q.q.ExecContext(ctx, `DELETE FROM bookings WHERE combo_link_id = ?`, linkID)
	if err != nil {
		return 0, classify("delete combo", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteUnlockedDrafts clears the previous import's untouched drafts in [from, to).
// Whole combo pairs go when either leg is unlocked, so no orphaned leg survives.
func (q *Queries) DeleteUnlockedDrafts(ctx context.Context, from, to time.Time) (int64, error) {
	res, err := q.q.ExecContext(ctx, `
		DELETE FROM bookings
		WHERE status = ? AND start_at >= ? AND start_at < ? AND is_locked = 0 AND combo_link_id IS NULL`,
		model.StatusSyncDraft, from.UTC(), to.UTC())
	if err != nil {
		return 0, classify("delete unlocked drafts", err)
	}
	singles, _ := res.RowsAffected()

	res, err = q.q.ExecContext(ctx, `
		DELETE FROM bookings WHERE combo_link_id IN (
			SELECT combo_link_id FROM bookings
			WHERE status = ? AND start_at >= ? AND start_at < ? AND combo_link_id IS NOT NULL
			GROUP BY combo_link_id HAVING MIN(is_locked) = 0
		)`,
		model.StatusSyncDraft, from.UTC(), to.UTC())
	if err != nil {
		return 0, classify("delete unlocked combo drafts", err)
	}
	legs, _ := res.RowsAffected()
	return singles + legs, nil
}

// DeleteDraftsInWindow removes every draft in [from, to), locked or not.
func (q *Queries) DeleteDraftsInWindow(ctx context.Context, from, to time.Time) (int64, error) {
	res, err := q.q.ExecContext(ctx, `DELETE FROM bookings WHERE status = ? AND start_at >= ? AND start_at < ?`,
		model.StatusSyncDraft, from.UTC(), to.UTC())
	if err != nil {
		return 0, classify("delete drafts", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteLiveInWindow removes live rows starting in [from, to). A combo with a leg in the window
// goes as a whole pair, except pairs with a leg starting before from: those are left intact and
// are reported by ListStraddlingCombos.
func (q *Queries) DeleteLiveInWindow(ctx context.Context, from, to time.Time) (int64, error) {
	const straddling = `SELECT combo_link_id FROM bookings
		WHERE status != ? AND start_at < ? AND combo_link_id IS NOT NULL`

	res, err := q.q.ExecContext(ctx, `
		DELETE FROM bookings WHERE status != ? AND combo_link_id IN (
			SELECT combo_link_id FROM bookings
			WHERE status != ? AND start_at >= ? AND start_at < ? AND combo_link_id IS NOT NULL
		) AND combo_link_id NOT IN (`+straddling+`)`,
		model.StatusSyncDraft, model.StatusSyncDraft, from.UTC(), to.UTC(), model.StatusSyncDraft, from.UTC())
	if err != nil {
		return 0, classify("delete live combos", err)
	}
	legs, _ := res.RowsAffected()

	res, err = q.q.ExecContext(ctx, `
		DELETE FROM bookings WHERE status != ? AND start_at >= ? AND start_at < ?
			AND (combo_link_id IS NULL OR combo_link_id NOT IN (`+straddling+`))`,
		model.StatusSyncDraft, from.UTC(), to.UTC(), model.StatusSyncDraft, from.UTC())
	if err != nil {
		return 0, classify("delete live window", err)
	}
	singles, _ := res.RowsAffected()
	return legs + singles, nil
}

// ListStraddlingCombos returns the live legs starting in [from, to) whose sibling starts before from.
func (q *Queries) ListStraddlingCombos(ctx context.Context, from, to time.Time) ([]model.Booking, error) {
	return q.queryBookings(ctx, "list straddling combos", `SELECT `+bookingColumns+` FROM bookings
		WHERE status NOT IN (?, ?) AND start_at >= ? AND start_at < ? AND combo_link_id IN (
			SELECT combo_link_id FROM bookings
			WHERE status NOT IN (?, ?) AND start_at < ? AND combo_link_id IS NOT NULL
		) ORDER BY start_at, resource_id`,
		model.StatusSyncDraft, model.StatusCancelled, from.UTC(), to.UTC(),
		model.StatusSyncDraft, model.StatusCancelled, from.UTC())
}

// PromoteDrafts turns drafts starting in [from, to) into confirmed bookings.
func (q *Queries) PromoteDrafts(ctx context.Context, from, to time.Time) (int64, error) {
	res, err := q.q.ExecContext(ctx, `
		UPDATE bookings SET status = ?, is_locked = 0, import_scope = '', updated_at = ?
		WHERE status = ? AND start_at >= ? AND start_at < ?`,
		model.StatusConfirmed, time.Now().UTC(), model.StatusSyncDraft, from.UTC(), to.UTC())
	if err != nil {
		return 0, classify("promote drafts", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
