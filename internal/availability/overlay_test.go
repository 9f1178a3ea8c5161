package availability

import (
	"context"
	"errors"
	"io"
	"testing"

	"spadesk/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockShifts struct {
	mock.Mock
}

func (m *mockShifts) GetShift(ctx context.Context, staffID int64, date string) (*model.Shift, error) {
	args := m.Called(ctx, staffID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Shift), args.Error(1)
}

func (m *mockShifts) ListShifts(ctx context.Context, from, to string) ([]model.Shift, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).([]model.Shift), args.Error(1)
}

func (m *mockShifts) GetStaffByName(ctx context.Context, name string) (*model.Staff, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Staff), args.Error(1)
}

const day = "2026-03-10"

func newOverlay(shifts ShiftReader) (*Overlay, *MemoryStore) {
	logger := zerolog.New(io.Discard)
	store := NewMemoryStore()
	return NewOverlay(shifts, store, &logger), store
}

func TestEffective(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		shift      *model.Shift
		toggled    bool
		wantState  State
		wantReason model.ShiftStatus
	}{
		{"no shift, not toggled", nil, false, Away, ""},
		{"no shift, toggled", nil, true, Online, ""},
		{"confirmed, toggled", &model.Shift{Status: model.ShiftConfirmed}, true, Online, ""},
		{"annual leave beats toggle", &model.Shift{Status: model.ShiftAL}, true, ForcedOff, model.ShiftAL},
		{"off", &model.Shift{Status: model.ShiftOff}, false, ForcedOff, model.ShiftOff},
		{"holiday with odd casing", &model.Shift{Status: "HOLIDAY"}, true, ForcedOff, model.ShiftHoliday},
		{"unknown status counts as working", &model.Shift{Status: "Training"}, true, Online, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shifts := new(mockShifts)
			if tt.shift == nil {
				shifts.On("GetShift", ctx, int64(7), day).Return(nil, model.ErrNotFound)
			} else {
				shifts.On("GetShift", ctx, int64(7), day).Return(tt.shift, nil)
			}
			o, store := newOverlay(shifts)
			require.NoError(t, store.SetOnline(ctx, day, 7, tt.toggled))

			eff, err := o.Effective(ctx, 7, day)
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, eff.State)
			assert.Equal(t, tt.wantReason, eff.Reason)
		})
	}
}

func TestToggle_ForcedOffIsUntouched(t *testing.T) {
	ctx := context.Background()
	shifts := new(mockShifts)
	shifts.On("GetShift", ctx, int64(7), day).Return(&model.Shift{StaffID: 7, Date: day, Status: model.ShiftAL}, nil)
	o, store := newOverlay(shifts)

	for i := 0; i < 2; i++ {
		eff, err := o.Toggle(ctx, 7, day)
		require.NoError(t, err)
		assert.Equal(t, ForcedOff, eff.State)
		assert.False(t, eff.Toggleable())
	}

	eff, err := o.SetOnline(ctx, 7, day, true)
	require.NoError(t, err)
	assert.Equal(t, ForcedOff, eff.State)

	online, err := store.Online(ctx, day)
	require.NoError(t, err)
	assert.Empty(t, online, "toggle store must not be written for forced-off staff")
}

func TestToggle_Flips(t *testing.T) {
	ctx := context.Background()
	shifts := new(mockShifts)
	shifts.On("GetShift", ctx, int64(3), day).Return(&model.Shift{Status: model.ShiftConfirmed}, nil)
	o, _ := newOverlay(shifts)

	eff, err := o.Toggle(ctx, 3, day)
	require.NoError(t, err)
	assert.Equal(t, Online, eff.State)

	eff, err = o.Toggle(ctx, 3, day)
	require.NoError(t, err)
	assert.Equal(t, Away, eff.State)
}

func TestEffective_Errors(t *testing.T) {
	ctx := context.Background()
	shifts := new(mockShifts)
	shifts.On("GetShift", ctx, int64(1), day).Return(nil, model.ErrStorageFailure)
	o, _ := newOverlay(shifts)

	_, err := o.Effective(ctx, 1, day)
	assert.ErrorIs(t, err, model.ErrStorageFailure)

	_, err = o.Effective(ctx, 1, "10.03.2026")
	assert.Error(t, err)
}

func TestEffectiveByName(t *testing.T) {
	ctx := context.Background()
	shifts := new(mockShifts)
	shifts.On("GetStaffByName", ctx, "NOK").Return(&model.Staff{ID: 5, Name: "Nok"}, nil)
	shifts.On("GetStaffByName", ctx, "ghost").Return(nil, errors.New("staff \"ghost\": not found"))
	shifts.On("GetShift", ctx, int64(5), day).Return(&model.Shift{Status: model.ShiftOff}, nil)
	o, _ := newOverlay(shifts)

	eff, err := o.EffectiveByName(ctx, "NOK", day)
	require.NoError(t, err)
	assert.Equal(t, int64(5), eff.StaffID)
	assert.Equal(t, ForcedOff, eff.State)

	_, err = o.EffectiveByName(ctx, "ghost", day)
	assert.Error(t, err)
}

func TestDay(t *testing.T) {
	ctx := context.Background()
	shifts := new(mockShifts)
	shifts.On("ListShifts", ctx, day, day).Return([]model.Shift{
		{StaffID: 1, Date: day, Status: model.ShiftConfirmed},
		{StaffID: 2, Date: day, Status: model.ShiftHoliday},
	}, nil).Once()
	o, store := newOverlay(shifts)
	require.NoError(t, store.SetOnline(ctx, day, 1, true))
	require.NoError(t, store.SetOnline(ctx, day, 2, true))

	got, err := o.Day(ctx, day, []model.Staff{{ID: 1}, {ID: 2}, {ID: 3}})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, Online, got[0].State)
	assert.Equal(t, ForcedOff, got[1].State)
	assert.Equal(t, Away, got[2].State)
	shifts.AssertExpectations(t)
}
