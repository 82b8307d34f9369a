package cache

import (
	"context"
	"time"

	"github.com/libren/support-chat/internal/domain"
)

// NoopCache is used when redis is disabled; every read is a miss.
type NoopCache struct{}

func NewNoopCache() *NoopCache { return &NoopCache{} }

func (NoopCache) Get(context.Context, string) ([]domain.Message, error) {
	return nil, ErrCacheMiss
}

func (NoopCache) Set(context.Context, string, []domain.Message, time.Duration) error {
	return nil
}

func (NoopCache) Invalidate(context.Context, string) error { return nil }

func (NoopCache) Close() error { return nil }
