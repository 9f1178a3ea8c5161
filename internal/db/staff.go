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

const defaultStaffRole = "therapist"

func scanStaff(row rowScanner) (*model.Staff, error) {
	var s model.Staff
	if err := row.Scan(&s.ID, &s.Name, &s.NameKey, &s.Role, &s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateStaff inserts a new staff member. The canonical name must be unique.
func (q *Queries) CreateStaff(ctx context.Context, s *model.Staff) error {
	name := strings.Join(strings.Fields(s.Name), " ")
	if name == "" {
		return fmt.Errorf("%w: staff name is required", model.ErrInvalidInput)
	}
	if s.Role == "" {
		s.Role = defaultStaffRole
	}
	now := time.Now().UTC()
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO staff (name, name_key, role, active, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)`,
		name, model.CanonicalName(name), s.Role, now, now)
	if err != nil {
		return classify("create staff", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return classify("create staff", err)
	}
	s.ID = id
	s.Name = name
	s.NameKey = model.CanonicalName(name)
	s.Active = true
	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

// GetStaff loads one staff member by id.
func (q *Queries) GetStaff(ctx context.Context, id int64) (*model.Staff, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT id, name, name_key, role, active, created_at, updated_at FROM staff WHERE id = ?`, id)
	s, err := scanStaff(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("staff %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, classify("get staff", err)
	}
	return s, nil
}

// GetStaffByName looks a member up by canonical name.
func (q *Queries) GetStaffByName(ctx context.Context, name string) (*model.Staff, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT id, name, name_key, role, active, created_at, updated_at FROM staff WHERE name_key = ?`,
		model.CanonicalName(name))
	s, err := scanStaff(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("staff %q: %w", name, model.ErrNotFound)
	}
	if err != nil {
		return nil, classify("get staff by name", err)
	}
	return s, nil
}

// EnsureStaff returns the member named name, creating it when the roster has never seen it.
// A soft-removed member is reactivated.
func (q *Queries) EnsureStaff(ctx context.Context, name string) (*model.Staff, bool, error) {
	existing, err := q.GetStaffByName(ctx, name)
	if err == nil {
		if !existing.Active {
			if _, err := q.q.ExecContext(ctx, `UPDATE staff SET active = 1, updated_at = ? WHERE id = ?`,
				time.Now().UTC(), existing.ID); err != nil {
				return nil, false, classify("reactivate staff", err)
			}
			existing.Active = true
			q.logger.Warn().Int64("staff_id", existing.ID).Str("name", existing.Name).
				Msg("Removed staff member reactivated by name")
		}
		return existing, false, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, false, err
	}
	s := &model.Staff{Name: name}
	if err := q.CreateStaff(ctx, s); err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// ListStaff returns staff ordered by name.
func (q *Queries) ListStaff(ctx context.Context, activeOnly bool) ([]model.Staff, error) {
	query := `SELECT id, name, name_key, role, active, created_at, updated_at FROM staff`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY name_key`

	rows, err := q.q.QueryContext(ctx, query)
	if err != nil {
		return nil, classify("list staff", err)
	}
	defer rows.Close()

	var out []model.Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, classify("list staff", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list staff", err)
	}
	return out, nil
}

// DeactivateStaff soft-removes a member; history keeps pointing at the row.
func (q *Queries) DeactivateStaff(ctx context.Context, id int64) error {
	res, err := q.q.ExecContext(ctx, `UPDATE staff SET active = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return classify("deactivate staff", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("staff %d: %w", id, model.ErrNotFound)
	}
	return nil
}
