package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/libren/support-chat/internal/domain"
)

// Routing keys for chat lifecycle events.
const (
	KeyChatCreated  = "chat.created"
	KeyChatAssigned = "chat.assigned"
	KeyChatClosed   = "chat.closed"
)

// Envelope wraps every published event with identity and timing
// metadata so consumers can dedupe and order.
type Envelope struct {
	EventID    string      `json:"event_id"`
	Event      string      `json:"event"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    domain.Chat `json:"payload"`
}

// Publisher emits chat lifecycle events. Publishing is best effort:
// failures are logged, never surfaced to the chat operation itself.
type Publisher interface {
	ChatCreated(ctx context.Context, chat *domain.Chat)
	ChatAssigned(ctx context.Context, chat *domain.Chat)
	ChatClosed(ctx context.Context, chat *domain.Chat)
	Close() error
}

func newEnvelope(event string, chat *domain.Chat) Envelope {
	return Envelope{
		EventID:    uuid.New().String(),
		Event:      event,
		OccurredAt: time.Now().UTC(),
		Payload:    *chat,
	}
}
