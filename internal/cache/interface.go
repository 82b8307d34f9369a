package cache

import (
	"context"
	"errors"
	"time"

	"github.com/libren/support-chat/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// MessageCache is a read-through cache for full chat histories. Writers
// invalidate on every append and on close so a reconnecting client
// never sees a stale history.
type MessageCache interface {
	Get(ctx context.Context, chatID string) ([]domain.Message, error)
	Set(ctx context.Context, chatID string, msgs []domain.Message, ttl time.Duration) error
	Invalidate(ctx context.Context, chatID string) error
	Close() error
}
