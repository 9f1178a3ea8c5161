// Package roster manages staff and their daily shifts.
package roster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"spadesk/internal/bizclock"
	"spadesk/internal/db"
	"spadesk/internal/events"
	"spadesk/internal/model"

	"github.com/rs/zerolog"
)

// Store is the persistence roster needs. *db.DB implements it.
type Store interface {
	WithTx(ctx context.Context, fn func(tx *db.Tx) error) error
	GetStaff(ctx context.Context, id int64) (*model.Staff, error)
	ListStaff(ctx context.Context, activeOnly bool) ([]model.Staff, error)
	ListShifts(ctx context.Context, fromDate, toDate string) ([]model.Shift, error)
	GetAttendance(ctx context.Context, staffID int64, date string) (*model.Attendance, error)
}

// EventPublisher emits domain events.
type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

// Service implements staff and shift management.
type Service struct {
	store  Store
	events EventPublisher
	logger zerolog.Logger
}

// NewService creates a roster service.
func NewService(store Store, eventBus EventPublisher, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		events: eventBus,
		logger: logger.With().Str("component", "roster").Logger(),
	}
}

// ShiftInput is a roster change for one staff member on one day.
type ShiftInput struct {
	StaffID   int64  `json:"staff_id"`
	Date      string `json:"date"`
	Status    string `json:"status"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
}

// ShiftChange is the outcome of UpsertShift. Shift and Attendance are nil when the day was deleted.
type ShiftChange struct {
	StaffID    int64             `json:"staff_id"`
	Date       string            `json:"date"`
	Status     model.ShiftStatus `json:"status"`
	Deleted    bool              `json:"deleted"`
	Shift      *model.Shift      `json:"shift,omitempty"`
	Attendance *model.Attendance `json:"attendance,omitempty"`
}

// UpsertShift writes a shift and the attendance row derived from it in one transaction.
// The DELETE status removes both rows.
func (s *Service) UpsertShift(ctx context.Context, in ShiftInput) (ShiftChange, error) {
	if _, err := bizclock.ParseDate(in.Date); err != nil {
		return ShiftChange{}, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	status := model.NormalizeShiftStatus(in.Status)
	if status == "" {
		return ShiftChange{}, fmt.Errorf("%w: shift status is required", model.ErrInvalidInput)
	}

	shift := &model.Shift{StaffID: in.StaffID, Date: in.Date, Status: status}
	if status != model.ShiftDelete && !status.IsForcedOff() {
		start, end, err := workingHours(in.StartTime, in.EndTime)
		if err != nil {
			return ShiftChange{}, err
		}
		shift.StartTime, shift.EndTime = start, end
	}

	change := ShiftChange{StaffID: in.StaffID, Date: in.Date, Status: status}
	err := s.store.WithTx(ctx, func(tx *db.Tx) error {
		if _, err := tx.GetStaff(ctx, in.StaffID); err != nil {
			return err
		}

		if status == model.ShiftDelete {
			if _, err := tx.DeleteShift(ctx, in.StaffID, in.Date); err != nil {
				return err
			}
			change.Deleted = true
			return tx.DeleteAttendance(ctx, in.StaffID, in.Date)
		}

		if err := tx.UpsertShift(ctx, shift); err != nil {
			return err
		}
		att := model.AttendanceFromShift(*shift)
		if err := tx.UpsertAttendance(ctx, &att); err != nil {
			return err
		}
		change.Shift, change.Attendance = shift, &att
		return nil
	})
	if err != nil {
		return ShiftChange{}, err
	}

	s.logger.Info().Int64("staff_id", in.StaffID).Str("date", in.Date).Str("status", string(status)).
		Msg("shift updated")
	if s.events != nil {
		if err := s.events.PublishJSON(events.ShiftChanged, change); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish shift change")
		}
	}
	return change, nil
}

// ListShifts returns the roster of a month scope.
func (s *Service) ListShifts(ctx context.Context, scopeKey string) ([]model.Shift, error) {
	scope, err := bizclock.ParseScope(scopeKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	first := bizclock.FormatDate(scope.Start())
	last := bizclock.FormatDate(scope.End().AddDate(0, 0, -1))
	return s.store.ListShifts(ctx, first, last)
}

// Attendance returns the derived attendance row of a day.
func (s *Service) Attendance(ctx context.Context, staffID int64, date string) (*model.Attendance, error) {
	return s.store.GetAttendance(ctx, staffID, date)
}

// GetStaff loads one member.
func (s *Service) GetStaff(ctx context.Context, id int64) (*model.Staff, error) {
	return s.store.GetStaff(ctx, id)
}

// CreateStaff adds a member.
func (s *Service) CreateStaff(ctx context.Context, name, role string) (*model.Staff, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: staff name is required", model.ErrInvalidInput)
	}
	member := &model.Staff{Name: name, Role: role}
	err := s.store.WithTx(ctx, func(tx *db.Tx) error {
		if _, err := tx.GetStaffByName(ctx, name); err == nil {
			return fmt.Errorf("%w: staff %q already exists", model.ErrInvalidInput, strings.TrimSpace(name))
		} else if !errors.Is(err, model.ErrNotFound) {
			return err
		}
		return tx.CreateStaff(ctx, member)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("staff_id", member.ID).Str("name", member.Name).Msg("staff created")
	return member, nil
}

// ListStaff returns staff ordered by name.
func (s *Service) ListStaff(ctx context.Context, activeOnly bool) ([]model.Staff, error) {
	return s.store.ListStaff(ctx, activeOnly)
}

// RemoveStaff deactivates a member. Bookings and shifts keep referencing the row.
func (s *Service) RemoveStaff(ctx context.Context, id int64) error {
	err := s.store.WithTx(ctx, func(tx *db.Tx) error {
		return tx.DeactivateStaff(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info().Int64("staff_id", id).Msg("staff removed")
	return nil
}

// SeedStaff makes sure every name in the reference list exists and is active.
// It returns the names that were created.
func (s *Service) SeedStaff(ctx context.Context, names []string) ([]string, error) {
	var created []string
	err := s.store.WithTx(ctx, func(tx *db.Tx) error {
		created = created[:0]
		for _, name := range names {
			if strings.TrimSpace(name) == "" {
				continue
			}
			member, isNew, err := tx.EnsureStaff(ctx, name)
			if err != nil {
				return err
			}
			if isNew {
				created = append(created, member.Name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(created)
	if len(created) > 0 {
		s.logger.Info().Strs("names", created).Msg("staff seeded")
	}
	return created, nil
}

func workingHours(start, end string) (string, string, error) {
	if start == "" && end == "" {
		return "", "", nil
	}
	from, err := bizclock.ParseClock(start)
	if err != nil {
		return "", "", fmt.Errorf("%w: shift start: %v", model.ErrInvalidInput, err)
	}
	to, err := bizclock.ParseClock(end)
	if err != nil {
		return "", "", fmt.Errorf("%w: shift end: %v", model.ErrInvalidInput, err)
	}
	if from >= to {
		return "", "", fmt.Errorf("shift %s-%s: %w", start, end, model.ErrInvalidInterval)
	}
	return clock(from), clock(to), nil
}

func clock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
