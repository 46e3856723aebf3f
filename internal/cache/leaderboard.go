// Package cache keeps the leaderboard window in Redis so that reloads triggered by
// change notifications on many hosts do not all hit Postgres.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"example.com/focusquest/internal/domain"
)

const defaultTTL = 5 * time.Minute

// Leaderboard decorates a ProfileStore, serving TopProfiles from a sorted set of total
// XP plus a hash of usernames. Every other method passes through.
type Leaderboard struct {
	domain.ProfileStore

	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *log.Logger
}

// Option customises the cache.
type Option func(*Leaderboard)

// WithPrefix changes the key prefix.
func WithPrefix(prefix string) Option {
	return func(l *Leaderboard) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// WithTTL bounds how long a cached window survives without invalidation.
func WithTTL(ttl time.Duration) Option {
	return func(l *Leaderboard) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithLogger overrides the cache logger.
func WithLogger(logger *log.Logger) Option {
	return func(l *Leaderboard) {
		l.logger = logger
	}
}

// NewLeaderboard wraps store with a Redis-backed leaderboard window.
func NewLeaderboard(store domain.ProfileStore, rdb redis.UniversalClient, opts ...Option) *Leaderboard {
	l := &Leaderboard{
		ProfileStore: store,
		rdb:          rdb,
		prefix:       "focusquest:leaderboard",
		ttl:          defaultTTL,
		logger:       log.New(log.Writer(), "[cache] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (l *Leaderboard) ranksKey() string  { return l.prefix + ":ranks" }
func (l *Leaderboard) namesKey() string  { return l.prefix + ":names" }
func (l *Leaderboard) windowKey() string { return l.prefix + ":window" }

// TopProfiles returns the cached window when it covers limit, otherwise loads it from
// the wrapped store and caches it. Cache failures fall back to the store.
func (l *Leaderboard) TopProfiles(ctx context.Context, limit int) ([]domain.Profile, error) {
	profiles, err := l.cached(ctx, limit)
	switch {
	case err == nil:
		recordLookup("hit")
		return profiles, nil
	case errors.Is(err, redis.Nil):
		recordLookup("miss")
	default:
		recordLookup("error")
		l.logger.Printf("read cached leaderboard: %v", err)
	}

	profiles, err = l.ProfileStore.TopProfiles(ctx, limit)
	if err != nil {
		return nil, err
	}
	if err := l.store(ctx, limit, profiles); err != nil {
		l.logger.Printf("cache leaderboard: %v", err)
	}
	return profiles, nil
}

// InsertProfile creates the profile and drops the cached window, which the new row may
// now belong to.
func (l *Leaderboard) InsertProfile(ctx context.Context, profile domain.Profile) error {
	if err := l.ProfileStore.InsertProfile(ctx, profile); err != nil {
		return err
	}
	if err := l.Invalidate(ctx); err != nil {
		l.logger.Printf("invalidate after insert (user=%s): %v", profile.ID, err)
	}
	return nil
}

// Invalidate drops the cached window.
func (l *Leaderboard) Invalidate(ctx context.Context) error {
	return l.rdb.Del(ctx, l.windowKey(), l.ranksKey(), l.namesKey()).Err()
}

// cached returns redis.Nil when no window of at least limit rows is stored.
func (l *Leaderboard) cached(ctx context.Context, limit int) ([]domain.Profile, error) {
	window, err := l.rdb.Get(ctx, l.windowKey()).Int()
	if err != nil {
		return nil, err
	}
	if window < limit {
		return nil, redis.Nil
	}

	members, err := l.rdb.ZRevRangeWithScores(ctx, l.ranksKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []domain.Profile{}, nil
	}
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = fmt.Sprint(m.Member)
	}
	names, err := l.rdb.HMGet(ctx, l.namesKey(), ids...).Result()
	if err != nil {
		return nil, err
	}

	profiles := make([]domain.Profile, len(members))
	for i, m := range members {
		username, _ := names[i].(string)
		profiles[i] = domain.Profile{ID: ids[i], Username: username, TotalXP: int(m.Score)}
	}
	return profiles, nil
}

func (l *Leaderboard) store(ctx context.Context, limit int, profiles []domain.Profile) error {
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, l.ranksKey(), l.namesKey())
		if len(profiles) > 0 {
			members := make([]redis.Z, len(profiles))
			names := make(map[string]any, len(profiles))
			for i, p := range profiles {
				members[i] = redis.Z{Score: float64(p.TotalXP), Member: p.ID}
				names[p.ID] = p.Username
			}
			pipe.ZAdd(ctx, l.ranksKey(), members...)
			pipe.HSet(ctx, l.namesKey(), names)
			pipe.Expire(ctx, l.ranksKey(), l.ttl)
			pipe.Expire(ctx, l.namesKey(), l.ttl)
		}
		pipe.Set(ctx, l.windowKey(), strconv.Itoa(limit), l.ttl)
		return nil
	})
	return err
}
