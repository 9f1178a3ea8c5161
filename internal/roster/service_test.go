package roster_test

import (
	"context"
	"encoding/json"
	"testing"

	"spadesk/internal/db/dbtest"
	"spadesk/internal/events"
	"spadesk/internal/model"
	"spadesk/internal/roster"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertShift_CascadesToAttendance(t *testing.T) {
	d := dbtest.Open(t)
	bus := events.NewEventBus()
	var changes []roster.ShiftChange
	bus.Subscribe(events.ShiftChanged, func(e events.Event) error {
		var c roster.ShiftChange
		require.NoError(t, json.Unmarshal(e.Payload, &c))
		changes = append(changes, c)
		return nil
	})
	svc := roster.NewService(d, bus, zerolog.Nop())
	ctx := context.Background()

	nok, err := svc.CreateStaff(ctx, "Nok", "")
	require.NoError(t, err)

	tests := []struct {
		name       string
		in         roster.ShiftInput
		wantStatus model.ShiftStatus
		wantStart  string
		wantEnd    string
	}{
		{
			name:       "working day",
			in:         roster.ShiftInput{StaffID: nok.ID, Date: "2026-03-10", Status: "confirmed", StartTime: "9:00", EndTime: "18.30"},
			wantStatus: model.ShiftConfirmed,
			wantStart:  "09:00",
			wantEnd:    "18:30",
		},
		{
			name:       "annual leave drops scheduled hours",
			in:         roster.ShiftInput{StaffID: nok.ID, Date: "2026-03-10", Status: "al", StartTime: "09:00", EndTime: "18:00"},
			wantStatus: model.ShiftAL,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change, err := svc.UpsertShift(ctx, tt.in)
			require.NoError(t, err)
			assert.False(t, change.Deleted)

			att, err := svc.Attendance(ctx, nok.ID, tt.in.Date)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, att.Status)
			assert.Equal(t, tt.wantStart, att.ScheduledStart)
			assert.Equal(t, tt.wantEnd, att.ScheduledEnd)
		})
	}

	change, err := svc.UpsertShift(ctx, roster.ShiftInput{StaffID: nok.ID, Date: "2026-03-10", Status: "DELETE"})
	require.NoError(t, err)
	assert.True(t, change.Deleted)

	_, err = d.GetShift(ctx, nok.ID, "2026-03-10")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = svc.Attendance(ctx, nok.ID, "2026-03-10")
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.Len(t, changes, 3)
	assert.True(t, changes[2].Deleted)
}

func TestUpsertShift_Validation(t *testing.T) {
	d := dbtest.Open(t)
	svc := roster.NewService(d, nil, zerolog.Nop())
	ctx := context.Background()

	nok, err := svc.CreateStaff(ctx, "Nok", "")
	require.NoError(t, err)

	tests := []struct {
		name string
		in   roster.ShiftInput
		is   error
	}{
		{name: "bad date", in: roster.ShiftInput{StaffID: nok.ID, Date: "10/03/2026", Status: "Confirmed"}, is: model.ErrInvalidInput},
		{name: "empty status", in: roster.ShiftInput{StaffID: nok.ID, Date: "2026-03-10"}, is: model.ErrInvalidInput},
		{name: "reversed hours", in: roster.ShiftInput{StaffID: nok.ID, Date: "2026-03-10", Status: "Confirmed", StartTime: "18:00", EndTime: "09:00"}, is: model.ErrInvalidInterval},
		{name: "unknown staff", in: roster.ShiftInput{StaffID: 404, Date: "2026-03-10", Status: "Off"}, is: model.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpsertShift(ctx, tt.in)
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}

	shifts, err := svc.ListShifts(ctx, "2026-03")
	require.NoError(t, err)
	assert.Empty(t, shifts)
}

func TestListShifts_MonthBounds(t *testing.T) {
	d := dbtest.Open(t)
	svc := roster.NewService(d, nil, zerolog.Nop())
	ctx := context.Background()

	nok, err := svc.CreateStaff(ctx, "Nok", "")
	require.NoError(t, err)
	for _, date := range []string{"2026-02-28", "2026-03-01", "2026-03-31", "2026-04-01"} {
		_, err := svc.UpsertShift(ctx, roster.ShiftInput{StaffID: nok.ID, Date: date, Status: "Off"})
		require.NoError(t, err)
	}

	shifts, err := svc.ListShifts(ctx, "2026-03")
	require.NoError(t, err)
	require.Len(t, shifts, 2)
	assert.Equal(t, "2026-03-01", shifts[0].Date)
	assert.Equal(t, "2026-03-31", shifts[1].Date)
}

func TestStaffLifecycle(t *testing.T) {
	d := dbtest.Open(t)
	svc := roster.NewService(d, nil, zerolog.Nop())
	ctx := context.Background()

	created, err := svc.SeedStaff(ctx, []string{"Ploy", " nok", "", "Ann"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ann", "Ploy", "nok"}, created)

	_, err = svc.CreateStaff(ctx, "NOK", "")
	assert.Error(t, err, "canonical names are unique")

	staff, err := svc.ListStaff(ctx, true)
	require.NoError(t, err)
	require.Len(t, staff, 3)

	require.NoError(t, svc.RemoveStaff(ctx, staff[0].ID))
	active, err := svc.ListStaff(ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	again, err := svc.SeedStaff(ctx, []string{"Ann", "Ploy"})
	require.NoError(t, err)
	assert.Empty(t, again, "reactivation is not a creation")
	active, err = svc.ListStaff(ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 3)

	assert.ErrorIs(t, svc.RemoveStaff(ctx, 999), model.ErrNotFound)
}
