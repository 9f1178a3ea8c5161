package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"spadesk/internal/model"
)

func scanShift(row rowScanner) (*model.Shift, error) {
	var s model.Shift
	if err := row.Scan(&s.ID, &s.StaffID, &s.Date, &s.Status, &s.StartTime, &s.EndTime, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetShift returns the roster row for staffID on date (YYYY-MM-DD).
func (q *Queries) GetShift(ctx context.Context, staffID int64, date string) (*model.Shift, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT id, staff_id, date, status, start_time, end_time, updated_at
		FROM shifts WHERE staff_id = ? AND date = ?`, staffID, date)
	s, err := scanShift(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("shift %d/%s: %w", staffID, date, model.ErrNotFound)
	}
	if err != nil {
		return nil, classify("get shift", err)
	}
	return s, nil
}

// ListShifts returns roster rows with date in [fromDate, toDate] inclusive.
func (q *Queries) ListShifts(ctx context.Context, fromDate, toDate string) ([]model.Shift, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, staff_id, date, status, start_time, end_time, updated_at
		FROM shifts WHERE date >= ? AND date <= ? ORDER BY date, staff_id`, fromDate, toDate)
	if err != nil {
		return nil, classify("list shifts", err)
	}
	defer rows.Close()

	var out []model.Shift
	for rows.Next() {
		s, err := scanShift(rows)
		if err != nil {
			return nil, classify("list shifts", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list shifts", err)
	}
	return out, nil
}

// UpsertShift writes the roster row. Callers own the transaction so the attendance cascade
// commits with it.
func (q *Queries) UpsertShift(ctx context.Context, s *model.Shift) error {
	now := time.Now().UTC()
	err := q.q.QueryRowContext(ctx, `
		INSERT INTO shifts (staff_id, date, status, start_time, end_time, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (staff_id, date) DO UPDATE SET
			status = excluded.status,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			updated_at = excluded.updated_at
		RETURNING id`,
		s.StaffID, s.Date, s.Status, s.StartTime, s.EndTime, now,
	).Scan(&s.ID)
	if err != nil {
		return classify("upsert shift", err)
	}
	s.UpdatedAt = now
	return nil
}

// DeleteShift removes the roster row if present.
func (q *Queries) DeleteShift(ctx context.Context, staffID int64, date string) (bool, error) {
	res, err := q.q.ExecContext(ctx, `DELETE FROM shifts WHERE staff_id = ? AND date = ?`, staffID, date)
	if err != nil {
		return false, classify("delete shift", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetAttendance returns the attendance row for staffID on date.
func (q *Queries) GetAttendance(ctx context.Context, staffID int64, date string) (*model.Attendance, error) {
	var (
		a        model.Attendance
		clockIn  sql.NullTime
		clockOut sql.NullTime
	)
	err := q.q.QueryRowContext(ctx, `
		SELECT id, staff_id, date, status, scheduled_start, scheduled_end, clock_in, clock_out, updated_at
		FROM attendance WHERE staff_id = ? AND date = ?`, staffID, date,
	).Scan(&a.ID, &a.StaffID, &a.Date, &a.Status, &a.ScheduledStart, &a.ScheduledEnd, &clockIn, &clockOut, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("attendance %d/%s: %w", staffID, date, model.ErrNotFound)
	}
	if err != nil {
		return nil, classify("get attendance", err)
	}
	if clockIn.Valid {
		a.ClockIn = &clockIn.Time
	}
	if clockOut.Valid {
		a.ClockOut = &clockOut.Time
	}
	return &a, nil
}

// UpsertAttendance writes the scheduled part of the attendance row. Clock-in/out are left alone.
func (q *Queries) UpsertAttendance(ctx context.Context, a *model.Attendance) error {
	now := time.Now().UTC()
	err := q.q.QueryRowContext(ctx, `
		INSERT INTO attendance (staff_id, date, status, scheduled_start, scheduled_end, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (staff_id, date) DO UPDATE SET
			status = excluded.status,
			scheduled_start = excluded.scheduled_start,
			scheduled_end = excluded.scheduled_end,
			updated_at = excluded.updated_at
		RETURNING id`,
		a.StaffID, a.Date, a.Status, a.ScheduledStart, a.ScheduledEnd, now,
	).Scan(&a.ID)
	if err != nil {
		return classify("upsert attendance", err)
	}
	a.UpdatedAt = now
	return nil
}

// DeleteAttendance removes the attendance row if present.
func (q *Queries) DeleteAttendance(ctx context.Context, staffID int64, date string) error {
	if _, err := q.q.ExecContext(ctx, `DELETE FROM attendance WHERE staff_id = ? AND date = ?`, staffID, date); err != nil {
		return classify("delete attendance", err)
	}
	return nil
}
