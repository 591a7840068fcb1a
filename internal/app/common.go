package app

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"glucoheart/internal/event"
	"glucoheart/internal/model"
	"glucoheart/internal/repository"
)

// HistoryCache caches the newest page of messages for a session or room.
type HistoryCache[T any] interface {
	GetHistory(ctx context.Context, id uint) ([]T, bool, error)
	SetHistory(ctx context.Context, id uint, items []T) error
	DeleteHistory(ctx context.Context, id uint) error
	MarkDirty(ctx context.Context, id uint) error
	IsDirty(ctx context.Context, id uint) (bool, error)
}

type SendLimiter interface {
	Allow(ctx context.Context, userID uint) (bool, time.Duration, error)
}

type MessagePolicy struct {
	MaxContentRunes int
	PageSize        int
}

func (p MessagePolicy) withDefaults() MessagePolicy {
	if p.MaxContentRunes <= 0 {
		p.MaxContentRunes = 4000
	}
	if p.PageSize <= 0 || p.PageSize > 200 {
		p.PageSize = 50
	}
	return p
}

func (p MessagePolicy) normalizeContent(raw string) (string, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return "", ErrMessageEmpty
	}
	if utf8.RuneCountInString(content) > p.MaxContentRunes {
		return "", ErrMessageTooLong
	}
	return content, nil
}

func (p MessagePolicy) normalizeLimit(limit int) int {
	if limit <= 0 {
		return p.PageSize
	}
	if limit > 200 {
		return 200
	}
	return limit
}

func loadActor(ctx context.Context, store *repository.Store, actorID uint) (*model.User, error) {
	if actorID == 0 {
		return nil, ErrInvalidInput
	}
	actor, err := store.Users.GetByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, ErrUnknownActor
	}
	return actor, nil
}

func checkRate(ctx context.Context, limiter SendLimiter, userID uint) error {
	if limiter == nil {
		return nil
	}
	ok, _, err := limiter.Allow(ctx, userID)
	if err != nil {
		slog.WarnContext(ctx, "rate limiter unavailable, allowing send", "user_id", userID, "error", err)
		return nil
	}
	if !ok {
		return ErrRateLimited
	}
	return nil
}

func publish(ctx context.Context, publisher event.Publisher, evt event.Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, evt); err != nil {
		slog.WarnContext(ctx, "publish realtime event failed", "event", evt.Name, "topics", evt.Topics, "error", err)
	}
}

func invalidateHistory[T any](ctx context.Context, cache HistoryCache[T], id uint) {
	if cache == nil {
		return
	}
	_ = cache.MarkDirty(ctx, id)
	_ = cache.DeleteHistory(ctx, id)
}

// readHistory serves the newest page from cache when possible; older pages and
// oversized requests always go to the database.
func readHistory[T any](
	ctx context.Context,
	cache HistoryCache[T],
	id uint,
	limit int,
	beforeID uint,
	pageSize int,
	load func(limit int, beforeID uint) ([]T, error),
) ([]T, error) {
	if cache == nil || beforeID != 0 || limit > pageSize {
		return load(limit, beforeID)
	}

	dirty, err := cache.IsDirty(ctx, id)
	if err == nil && !dirty {
		if cached, hit, cacheErr := cache.GetHistory(ctx, id); cacheErr == nil && hit {
			return tail(cached, limit), nil
		}
	}

	items, err := load(pageSize, 0)
	if err != nil {
		return nil, err
	}
	if dirty, dirtyErr := cache.IsDirty(ctx, id); dirtyErr == nil && !dirty {
		_ = cache.SetHistory(ctx, id, items)
	}
	return tail(items, limit), nil
}

func tail[T any](items []T, limit int) []T {
	if limit <= 0 || limit >= len(items) {
		return items
	}
	return items[len(items)-limit:]
}
