package bizclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAt(t *testing.T) {
	got, err := At("2026-01-15", "10:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 15, 3, 0, 0, 0, time.UTC), got)
	assert.Equal(t, "10:00", FormatClock(got))
	assert.Equal(t, "2026-01-15", FormatDate(got))
}

func TestAt_EarlyMorningCrossesUTCDate(t *testing.T) {
	got, err := At("2026-01-15", "06:30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 14, 23, 30, 0, 0, time.UTC), got)
	assert.Equal(t, "2026-01-15", FormatDate(got))
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"10:00", 600, false},
		{"9:05", 545, false},
		{"13.30", 810, false},
		{" 08:15 ", 495, false},
		{"24:00", 0, true},
		{"10:61", 0, true},
		{"1000", 0, true},
		{"ab:cd", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDayBounds(t *testing.T) {
	instant := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC) // 03:00 on Mar 2 local
	start, end := DayBounds(instant)
	assert.Equal(t, time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC), start)
	assert.Equal(t, 24*time.Hour, end.Sub(start))
}

func TestScope(t *testing.T) {
	s, err := ParseScope("2026-02")
	require.NoError(t, err)
	assert.Equal(t, "2026-02", s.Key())
	assert.Equal(t, time.Date(2026, 1, 31, 17, 0, 0, 0, time.UTC), s.Start())
	assert.Equal(t, time.Date(2026, 2, 28, 17, 0, 0, 0, time.UTC), s.End())

	assert.True(t, s.Contains(s.Start()))
	assert.False(t, s.Contains(s.End()))

	_, err = ParseScope("02-2026")
	assert.Error(t, err)

	inside, _ := At("2026-02-10", "12:00")
	assert.Equal(t, s, ScopeOf(inside))
}
