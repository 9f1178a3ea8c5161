package availability

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"spadesk/internal/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ToggleStore holds the manual online set per local date.
type ToggleStore interface {
	IsOnline(ctx context.Context, date string, staffID int64) (bool, error)
	SetOnline(ctx context.Context, date string, staffID int64, online bool) error
	Online(ctx context.Context, date string) ([]int64, error)
}

// MemoryStore keeps toggles in process; they are lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	days map[string]map[int64]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{days: make(map[string]map[int64]struct{})}
}

func (m *MemoryStore) IsOnline(_ context.Context, date string, staffID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.days[date][staffID]
	return ok, nil
}

func (m *MemoryStore) SetOnline(_ context.Context, date string, staffID int64, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.days[date]
	if online {
		if set == nil {
			set = make(map[int64]struct{})
			m.days[date] = set
		}
		set[staffID] = struct{}{}
		return nil
	}
	delete(set, staffID)
	if len(set) == 0 {
		delete(m.days, date)
	}
	return nil
}

func (m *MemoryStore) Online(_ context.Context, date string) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int64, 0, len(m.days[date]))
	for id := range m.days[date] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// RedisStore shares toggles between instances. Each date is one set that expires after ttl.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &RedisStore{rdb: rdb, prefix: "spadesk:online:", ttl: ttl}
}

func (r *RedisStore) key(date string) string {
	return r.prefix + date
}

func (r *RedisStore) IsOnline(ctx context.Context, date string, staffID int64) (bool, error) {
	return r.rdb.SIsMember(ctx, r.key(date), staffID).Result()
}

func (r *RedisStore) SetOnline(ctx context.Context, date string, staffID int64, online bool) error {
	key := r.key(date)
	if !online {
		return r.rdb.SRem(ctx, key, staffID).Err()
	}
	pipe := r.rdb.TxPipeline()
	pipe.SAdd(ctx, key, staffID)
	pipe.Expire(ctx, key, r.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Online(ctx context.Context, date string) ([]int64, error) {
	members, err := r.rdb.SMembers(ctx, r.key(date)).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad member %q in %s: %w", m, r.key(date), err)
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// FailoverStore serves from primary and falls back when it errors. While primary is
// marked down it is retried at most once per retryInterval.
type FailoverStore struct {
	primary       ToggleStore
	fallback      ToggleStore
	logger        *zerolog.Logger
	retryInterval time.Duration

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverStore(primary, fallback ToggleStore, logger *zerolog.Logger) *FailoverStore {
	return &FailoverStore{
		primary:       primary,
		fallback:      fallback,
		logger:        logger,
		retryInterval: time.Minute,
	}
}

// usePrimary reports whether the next call should try primary.
func (f *FailoverStore) usePrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if time.Since(f.lastCheck) >= f.retryInterval {
		f.lastCheck = time.Now()
		return true
	}
	return false
}

func (f *FailoverStore) markDown(err error) {
	if !f.isDown.Swap(true) {
		f.logger.Warn().Err(err).Msg("Toggle store primary failed, switching to fallback")
	}
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
	metrics.SetToggleStoreDown(true)
}

func (f *FailoverStore) markUp() {
	if f.isDown.Swap(false) {
		f.logger.Info().Msg("Toggle store primary recovered")
		metrics.SetToggleStoreDown(false)
	}
}

func (f *FailoverStore) IsOnline(ctx context.Context, date string, staffID int64) (bool, error) {
	if f.usePrimary() {
		online, err := f.primary.IsOnline(ctx, date, staffID)
		if err == nil {
			f.markUp()
			return online, nil
		}
		f.markDown(err)
	}
	return f.fallback.IsOnline(ctx, date, staffID)
}

// SetOnline writes through to the fallback as well so a later failover sees recent toggles.
func (f *FailoverStore) SetOnline(ctx context.Context, date string, staffID int64, online bool) error {
	if err := f.fallback.SetOnline(ctx, date, staffID, online); err != nil {
		return err
	}
	if f.usePrimary() {
		if err := f.primary.SetOnline(ctx, date, staffID, online); err != nil {
			f.markDown(err)
			return nil
		}
		f.markUp()
	}
	return nil
}

func (f *FailoverStore) Online(ctx context.Context, date string) ([]int64, error) {
	if f.usePrimary() {
		ids, err := f.primary.Online(ctx, date)
		if err == nil {
			f.markUp()
			return ids, nil
		}
		f.markDown(err)
	}
	return f.fallback.Online(ctx, date)
}
