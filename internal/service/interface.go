package service

import (
	"context"

	"github.com/libren/support-chat/internal/domain"
	"github.com/libren/support-chat/internal/hub"
)

// ChatService is the application surface behind both the REST handlers
// and the WebSocket handler.
type ChatService interface {
	CreateChat(ctx context.Context, patron domain.Identity, title string) (*domain.Chat, error)
	PatronChats(ctx context.Context, patronID string) ([]domain.Chat, error)
	AssignedChats(ctx context.Context, librarianID string) ([]domain.Chat, error)
	UnassignedChats(ctx context.Context) ([]domain.Chat, error)
	Claim(ctx context.Context, chatID string, librarian domain.Identity) (*domain.Chat, error)
	CloseChat(ctx context.Context, chatID string, librarian domain.Identity) (*domain.Chat, error)
	History(ctx context.Context, chatID string, viewer domain.Identity) ([]domain.Message, error)

	HandleBind(ctx context.Context, c *hub.Client, chatID string) (*domain.Chat, error)
	HandleSend(ctx context.Context, c *hub.Client, content string) (*domain.Message, error)
	HandleDisconnect(ctx context.Context, c *hub.Client)
}
