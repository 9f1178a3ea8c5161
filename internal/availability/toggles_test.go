package availability

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.SetOnline(ctx, day, 2, true))
	require.NoError(t, s.SetOnline(ctx, day, 1, true))
	require.NoError(t, s.SetOnline(ctx, "2026-03-11", 9, true))

	ids, err := s.Online(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)

	require.NoError(t, s.SetOnline(ctx, day, 2, false))
	online, err := s.IsOnline(ctx, day, 2)
	require.NoError(t, err)
	assert.False(t, online)

	// removing from an unknown day is fine
	require.NoError(t, s.SetOnline(ctx, "2030-01-01", 1, false))
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	s := NewRedisStore(rdb, time.Hour)

	require.NoError(t, s.SetOnline(ctx, day, 4, true))
	require.NoError(t, s.SetOnline(ctx, day, 3, true))

	online, err := s.IsOnline(ctx, day, 4)
	require.NoError(t, err)
	assert.True(t, online)

	ids, err := s.Online(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, ids)
	assert.Equal(t, time.Hour, mr.TTL("spadesk:online:"+day))

	require.NoError(t, s.SetOnline(ctx, day, 4, false))
	online, err = s.IsOnline(ctx, day, 4)
	require.NoError(t, err)
	assert.False(t, online)

	mr.FastForward(2 * time.Hour)
	ids, err = s.Online(ctx, day)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

type mockToggles struct {
	mock.Mock
}

func (m *mockToggles) IsOnline(ctx context.Context, date string, staffID int64) (bool, error) {
	args := m.Called(ctx, date, staffID)
	return args.Bool(0), args.Error(1)
}

func (m *mockToggles) SetOnline(ctx context.Context, date string, staffID int64, online bool) error {
	return m.Called(ctx, date, staffID, online).Error(0)
}

func (m *mockToggles) Online(ctx context.Context, date string) ([]int64, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func TestFailoverStore(t *testing.T) {
	primary := new(mockToggles)
	fallback := NewMemoryStore()
	logger := zerolog.New(io.Discard)
	store := NewFailoverStore(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("IsOnline", ctx, day, int64(1)).Return(true, nil).Once()

		online, err := store.IsOnline(ctx, day, 1)
		assert.NoError(t, err)
		assert.True(t, online)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		require.NoError(t, fallback.SetOnline(ctx, day, 2, true))
		primary.On("IsOnline", ctx, day, int64(2)).Return(false, errors.New("connection refused")).Once()

		online, err := store.IsOnline(ctx, day, 2)
		assert.NoError(t, err)
		assert.True(t, online)
		assert.True(t, store.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("DownSkipsPrimary", func(t *testing.T) {
		require.NoError(t, store.SetOnline(ctx, day, 3, true))

		online, err := store.IsOnline(ctx, day, 3)
		assert.NoError(t, err)
		assert.True(t, online)
		primary.AssertNotCalled(t, "SetOnline", ctx, day, int64(3), true)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		store.isDown.Store(true)
		store.lastCheck = time.Now().Add(-2 * time.Minute)
		primary.On("Online", ctx, day).Return([]int64{1}, nil).Once()

		ids, err := store.Online(ctx, day)
		assert.NoError(t, err)
		assert.Equal(t, []int64{1}, ids)
		assert.False(t, store.isDown.Load())
		primary.AssertExpectations(t)
	})
}
