package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLog persists recipient logs in Redis so notification state survives a
// restart and is shared across API replicas. Layout per recipient: a list of
// JSON records (newest first) and a set of seen dedupe keys.
type RedisLog struct {
	rdb       *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func NewRedisLog(addr, password string, db int) (*RedisLog, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(password),
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisLog{
		rdb:       rdb,
		keyPrefix: "dispatch:notify:",
		ttl:       30 * 24 * time.Hour,
	}, nil
}

func (l *RedisLog) listKey(r Recipient) string {
	return l.keyPrefix + "log:" + r.Key()
}

func (l *RedisLog) seenKey(r Recipient) string {
	return l.keyPrefix + "seen:" + r.Key()
}

func (l *RedisLog) Insert(ctx context.Context, r Recipient, n Notification, capacity int) (bool, error) {
	if n.DedupeKey != "" {
		added, err := l.rdb.SAdd(ctx, l.seenKey(r), n.DedupeKey).Result()
		if err != nil {
			return false, fmt.Errorf("redis sadd failed: %w", err)
		}
		if added == 0 {
			return false, nil
		}
	}

	body, err := json.Marshal(n)
	if err != nil {
		return false, fmt.Errorf("failed to marshal notification: %w", err)
	}

	pipe := l.rdb.TxPipeline()
	pipe.LPush(ctx, l.listKey(r), body)
	if capacity > 0 {
		pipe.LTrim(ctx, l.listKey(r), 0, int64(capacity-1))
	}
	pipe.Expire(ctx, l.listKey(r), l.ttl)
	pipe.Expire(ctx, l.seenKey(r), l.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis insert failed: %w", err)
	}

	return true, nil
}

func (l *RedisLog) load(ctx context.Context, r Recipient) ([]Notification, error) {
	raw, err := l.rdb.LRange(ctx, l.listKey(r), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}

	items := make([]Notification, 0, len(raw))
	for _, s := range raw {
		var n Notification
		if err := json.Unmarshal([]byte(s), &n); err != nil {
			// Skip records that no longer parse rather than failing the read.
			continue
		}
		items = append(items, n)
	}
	return items, nil
}

func (l *RedisLog) List(ctx context.Context, r Recipient) ([]Notification, error) {
	return l.load(ctx, r)
}

func (l *RedisLog) MarkRead(ctx context.Context, r Recipient, id string) error {
	items, err := l.load(ctx, r)
	if err != nil {
		return err
	}
	for i, n := range items {
		if n.ID == id && !n.Read {
			n.Read = true
			body, err := json.Marshal(n)
			if err != nil {
				return fmt.Errorf("failed to marshal notification: %w", err)
			}
			if err := l.rdb.LSet(ctx, l.listKey(r), int64(i), body).Err(); err != nil {
				return fmt.Errorf("redis lset failed: %w", err)
			}
			return nil
		}
	}
	return nil
}

func (l *RedisLog) MarkAllRead(ctx context.Context, r Recipient) error {
	items, err := l.load(ctx, r)
	if err != nil {
		return err
	}
	for i, n := range items {
		if n.Read {
			continue
		}
		n.Read = true
		body, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("failed to marshal notification: %w", err)
		}
		if err := l.rdb.LSet(ctx, l.listKey(r), int64(i), body).Err(); err != nil {
			return fmt.Errorf("redis lset failed: %w", err)
		}
	}
	return nil
}

func (l *RedisLog) Clear(ctx context.Context, r Recipient) error {
	if err := l.rdb.Del(ctx, l.listKey(r), l.seenKey(r)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
