package events

import (
	"context"

	"github.com/libren/support-chat/internal/domain"
)

// NoopPublisher is used when event publishing is disabled.
type NoopPublisher struct{}

func NewNoopPublisher() *NoopPublisher { return &NoopPublisher{} }

func (NoopPublisher) ChatCreated(context.Context, *domain.Chat)  {}
func (NoopPublisher) ChatAssigned(context.Context, *domain.Chat) {}
func (NoopPublisher) ChatClosed(context.Context, *domain.Chat)   {}
func (NoopPublisher) Close() error                               { return nil }
