package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// HistoryCache keeps the newest page of a conversation in Redis. A short-lived
// dirty marker set on every write stops readers from re-filling the cache with
// a page read before the write committed.
type HistoryCache[T any] struct {
	client         *redisv9.Client
	namespace      string
	historyTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

func NewHistoryCache[T any](client *redisv9.Client, namespace string, historyTTL, dirtyMarkerTTL time.Duration) *HistoryCache[T] {
	if historyTTL <= 0 {
		historyTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &HistoryCache[T]{
		client:         client,
		namespace:      namespace,
		historyTTL:     historyTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

func (c *HistoryCache[T]) GetHistory(ctx context.Context, id uint) ([]T, bool, error) {
	raw, err := c.client.Get(ctx, c.historyKey(id)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var items []T
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return items, true, nil
}

func (c *HistoryCache[T]) SetHistory(ctx context.Context, id uint, items []T) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.historyKey(id), payload, c.historyTTL).Err(); err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache[T]) DeleteHistory(ctx context.Context, id uint) error {
	if err := c.client.Del(ctx, c.historyKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache[T]) MarkDirty(ctx context.Context, id uint) error {
	if err := c.client.Set(ctx, c.dirtyKey(id), "1", c.dirtyMarkerTTL).Err(); err != nil {
		return fmt.Errorf("redis set dirty marker failed: %w", err)
	}
	return nil
}

func (c *HistoryCache[T]) IsDirty(ctx context.Context, id uint) (bool, error) {
	exists, err := c.client.Exists(ctx, c.dirtyKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

func (c *HistoryCache[T]) historyKey(id uint) string {
	return fmt.Sprintf("%s:history:%d", c.namespace, id)
}

func (c *HistoryCache[T]) dirtyKey(id uint) string {
	return fmt.Sprintf("%s:history:dirty:%d", c.namespace, id)
}
