package store

import (
	"context"

	"github.com/libren/support-chat/internal/domain"
)

// ChatStore is the durable source of truth for chats and messages.
//
// Assign and Close are atomic check-and-set transitions on chat status;
// AppendMessage treats a closed chat as a barrier and never partially
// applies (a message is either persisted or entirely rejected).
type ChatStore interface {
	CreateChat(ctx context.Context, patronID, title string) (*domain.Chat, error)
	GetChat(ctx context.Context, chatID string) (*domain.Chat, error)
	ListChatsForPatron(ctx context.Context, patronID string) ([]domain.Chat, error)
	ListUnassigned(ctx context.Context) ([]domain.Chat, error)
	ListAssignedTo(ctx context.Context, librarianID string) ([]domain.Chat, error)
	Assign(ctx context.Context, chatID, librarianID string) (*domain.Chat, error)
	Close(ctx context.Context, chatID string) (*domain.Chat, error)
	AppendMessage(ctx context.Context, chatID string, sender domain.Identity, content string) (*domain.Message, error)
	ListMessages(ctx context.Context, chatID string) ([]domain.Message, error)
}
