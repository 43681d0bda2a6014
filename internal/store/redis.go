package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "chatbridge:channel:"

// Redis keeps records as JSON strings, one key per chat
type Redis struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects and pings the server
func NewRedis(cfg Config) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Redis{rdb: rdb, prefix: prefix, ttl: cfg.TTL}, nil
}

func (s *Redis) key(platform, chatID string) string {
	return s.prefix + platform + ":" + chatID
}

func (s *Redis) Resolve(ctx context.Context, platform, chatID, userID string) (ChannelRecord, error) {
	key := s.key(platform, chatID)

	rec, err := s.get(ctx, key)
	if err == nil {
		if s.ttl > 0 {
			s.rdb.Expire(ctx, key, s.ttl)
		}
		return rec, nil
	}
	if !errors.Is(err, redis.Nil) {
		return ChannelRecord{}, err
	}

	rec = newRecord(platform, chatID, userID)
	data, err := json.Marshal(rec)
	if err != nil {
		return ChannelRecord{}, fmt.Errorf("failed to encode channel record: %w", err)
	}
	created, err := s.rdb.SetNX(ctx, key, data, s.ttl).Result()
	if err != nil {
		return ChannelRecord{}, fmt.Errorf("setnx failed: %w", err)
	}
	if !created {
		// another request created it first
		return s.get(ctx, key)
	}
	return rec, nil
}

func (s *Redis) get(ctx context.Context, key string) (ChannelRecord, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return ChannelRecord{}, err
	}
	var rec ChannelRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return ChannelRecord{}, fmt.Errorf("failed to decode channel record: %w", err)
	}
	return rec, nil
}

func (s *Redis) Reset(ctx context.Context, platform, chatID string) error {
	if err := s.rdb.Del(ctx, s.key(platform, chatID)).Err(); err != nil {
		return fmt.Errorf("del failed: %w", err)
	}
	return nil
}

func (s *Redis) Close() error {
	return s.rdb.Close()
}
