package model

import (
	"strings"
	"time"
)

// Staff is a therapist or front-desk member.
type Staff struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	NameKey   string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanonicalName is the join key for names coming from imports: trimmed, single-spaced, lower-case.
func CanonicalName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// ShiftStatus is the roster state of a staff member for one day.
type ShiftStatus string

const (
	ShiftConfirmed ShiftStatus = "Confirmed"
	ShiftOff       ShiftStatus = "Off"
	ShiftAL        ShiftStatus = "AL"
	ShiftHoliday   ShiftStatus = "Holiday"
	// ShiftDelete is a sentinel: upserting it removes the row.
	ShiftDelete ShiftStatus = "DELETE"
)

// NormalizeShiftStatus maps inconsistent casing from imported rosters onto the known statuses.
// Unknown values are kept as-is.
func NormalizeShiftStatus(s string) ShiftStatus {
	trimmed := strings.TrimSpace(s)
	for _, known := range []ShiftStatus{ShiftConfirmed, ShiftOff, ShiftAL, ShiftHoliday, ShiftDelete} {
		if strings.EqualFold(trimmed, string(known)) {
			return known
		}
	}
	return ShiftStatus(trimmed)
}

// IsForcedOff reports whether the status removes the staff member from the floor for the day.
func (s ShiftStatus) IsForcedOff() bool {
	switch NormalizeShiftStatus(string(s)) {
	case ShiftOff, ShiftAL, ShiftHoliday:
		return true
	}
	return false
}

// Shift is one roster row per staff per local date.
type Shift struct {
	ID        int64       `json:"id"`
	StaffID   int64       `json:"staff_id"`
	Date      string      `json:"date"` // YYYY-MM-DD, local
	Status    ShiftStatus `json:"status"`
	StartTime string      `json:"start_time,omitempty"` // HH:mm
	EndTime   string      `json:"end_time,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Attendance is derived from Shift. Clock-in/out are filled by the attendance terminal, not by the core.
type Attendance struct {
	ID             int64       `json:"id"`
	StaffID        int64       `json:"staff_id"`
	Date           string      `json:"date"`
	Status         ShiftStatus `json:"status"`
	ScheduledStart string      `json:"scheduled_start,omitempty"`
	ScheduledEnd   string      `json:"scheduled_end,omitempty"`
	ClockIn        *time.Time  `json:"clock_in,omitempty"`
	ClockOut       *time.Time  `json:"clock_out,omitempty"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// AttendanceFromShift derives the attendance row a shift implies.
func AttendanceFromShift(s Shift) Attendance {
	a := Attendance{
		StaffID: s.StaffID,
		Date:    s.Date,
		Status:  s.Status,
	}
	if !s.Status.IsForcedOff() {
		a.ScheduledStart = s.StartTime
		a.ScheduledEnd = s.EndTime
	}
	return a
}
