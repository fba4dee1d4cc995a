package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const topicKeyPrefix = "interview:topic:"

// Store keeps session scoped state in Redis. Keys expire with the login
// session so abandoned topics do not pile up.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(addr, password string, db int, ttl time.Duration) *Store {
	return NewWithClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), ttl)
}

func NewWithClient(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) GetTopic(ctx context.Context, sessionID string) (string, error) {
	v, err := s.rdb.Get(ctx, topicKeyPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

// SetTopicNX writes the topic only when none is set (first write wins).
func (s *Store) SetTopicNX(ctx context.Context, sessionID, topic string) (bool, error) {
	return s.rdb.SetNX(ctx, topicKeyPrefix+sessionID, topic, s.ttl).Result()
}

func (s *Store) ClearTopic(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, topicKeyPrefix+sessionID).Err()
}
