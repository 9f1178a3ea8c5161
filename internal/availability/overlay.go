// Package availability merges roster shifts with manual online/away toggles.
package availability

import (
	"context"
	"errors"
	"fmt"

	"spadesk/internal/bizclock"
	"spadesk/internal/model"

	"github.com/rs/zerolog"
)

// State is the effective availability of a staff member for a day.
type State string

const (
	Online    State = "online"
	Away      State = "away"
	ForcedOff State = "forced_off"
)

// Effective is the computed availability. Reason is set only for ForcedOff.
type Effective struct {
	StaffID int64             `json:"staff_id"`
	Date    string            `json:"date"`
	State   State             `json:"state"`
	Reason  model.ShiftStatus `json:"reason,omitempty"`
}

// Toggleable reports whether the manual switch may change this state.
func (e Effective) Toggleable() bool {
	return e.State != ForcedOff
}

// ShiftReader looks roster rows up by staff id. *db.DB implements it.
type ShiftReader interface {
	GetShift(ctx context.Context, staffID int64, date string) (*model.Shift, error)
	ListShifts(ctx context.Context, fromDate, toDate string) ([]model.Shift, error)
	GetStaffByName(ctx context.Context, name string) (*model.Staff, error)
}

// Overlay computes effective availability.
type Overlay struct {
	shifts  ShiftReader
	toggles ToggleStore
	logger  *zerolog.Logger
}

func NewOverlay(shifts ShiftReader, toggles ToggleStore, logger *zerolog.Logger) *Overlay {
	return &Overlay{shifts: shifts, toggles: toggles, logger: logger}
}

// Effective returns the state of staffID on date (YYYY-MM-DD, local).
func (o *Overlay) Effective(ctx context.Context, staffID int64, date string) (Effective, error) {
	if _, err := bizclock.ParseDate(date); err != nil {
		return Effective{}, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	shift, err := o.shifts.GetShift(ctx, staffID, date)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return Effective{}, err
	}
	var status model.ShiftStatus
	if shift != nil {
		status = shift.Status
	}
	return o.resolve(ctx, staffID, date, status)
}

// EffectiveByName resolves a display name through its canonical key first. Imported data
// carries names; everything after this lookup joins by id.
func (o *Overlay) EffectiveByName(ctx context.Context, name, date string) (Effective, error) {
	staff, err := o.shifts.GetStaffByName(ctx, name)
	if err != nil {
		return Effective{}, err
	}
	return o.Effective(ctx, staff.ID, date)
}

// Day returns the effective state of each listed staff member on date with one roster query.
func (o *Overlay) Day(ctx context.Context, date string, staff []model.Staff) ([]Effective, error) {
	if _, err := bizclock.ParseDate(date); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	shifts, err := o.shifts.ListShifts(ctx, date, date)
	if err != nil {
		return nil, err
	}
	byStaff := make(map[int64]model.ShiftStatus, len(shifts))
	for _, s := range shifts {
		byStaff[s.StaffID] = s.Status
	}

	out := make([]Effective, 0, len(staff))
	for _, s := range staff {
		eff, err := o.resolve(ctx, s.ID, date, byStaff[s.ID])
		if err != nil {
			return nil, err
		}
		out = append(out, eff)
	}
	return out, nil
}

// SetOnline sets the manual switch. It has no effect while the roster forces the member off.
func (o *Overlay) SetOnline(ctx context.Context, staffID int64, date string, online bool) (Effective, error) {
	eff, err := o.Effective(ctx, staffID, date)
	if err != nil {
		return Effective{}, err
	}
	if !eff.Toggleable() {
		o.logger.Debug().Int64("staff_id", staffID).Str("date", date).Str("reason", string(eff.Reason)).
			Msg("Toggle ignored for forced-off staff")
		return eff, nil
	}
	if err := o.toggles.SetOnline(ctx, date, staffID, online); err != nil {
		return Effective{}, fmt.Errorf("set toggle: %w", err)
	}
	eff.State = Away
	if online {
		eff.State = Online
	}
	return eff, nil
}

// Toggle flips the manual switch.
func (o *Overlay) Toggle(ctx context.Context, staffID int64, date string) (Effective, error) {
	eff, err := o.Effective(ctx, staffID, date)
	if err != nil {
		return Effective{}, err
	}
	if !eff.Toggleable() {
		return eff, nil
	}
	return o.SetOnline(ctx, staffID, date, eff.State != Online)
}

func (o *Overlay) resolve(ctx context.Context, staffID int64, date string, status model.ShiftStatus) (Effective, error) {
	eff := Effective{StaffID: staffID, Date: date}
	if status.IsForcedOff() {
		eff.State = ForcedOff
		eff.Reason = model.NormalizeShiftStatus(string(status))
		return eff, nil
	}
	online, err := o.toggles.IsOnline(ctx, date, staffID)
	if err != nil {
		return Effective{}, fmt.Errorf("read toggle: %w", err)
	}
	eff.State = Away
	if online {
		eff.State = Online
	}
	return eff, nil
}
