package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/libren/support-chat/internal/assign"
	"github.com/libren/support-chat/internal/audit"
	"github.com/libren/support-chat/internal/domain"
	"github.com/libren/support-chat/internal/events"
	"github.com/libren/support-chat/internal/hub"
	"github.com/libren/support-chat/internal/registry"
	"github.com/libren/support-chat/internal/store"
)

type chatService struct {
	store       store.ChatStore
	registry    *registry.SessionRegistry
	coordinator *assign.Coordinator
	cacheTTL    time.Duration
	events      events.Publisher
	sf          singleflight.Group
}

func NewChatService(
	st store.ChatStore,
	reg *registry.SessionRegistry,
	coord *assign.Coordinator,
	cacheTTL time.Duration,
	pub events.Publisher,
) ChatService {
	return &chatService{
		store:       st,
		registry:    reg,
		coordinator: coord,
		cacheTTL:    cacheTTL,
		events:      pub,
	}
}

func (s *chatService) CreateChat(ctx context.Context, patron domain.Identity, title string) (*domain.Chat, error) {
	chat, err := s.store.CreateChat(ctx, patron.UserID, title)
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}

	s.events.ChatCreated(ctx, chat)
	audit.Log(ctx, audit.ActionCreateChat, patron.UserID, chat.ID, "chat created")
	return chat, nil
}

func (s *chatService) PatronChats(ctx context.Context, patronID string) ([]domain.Chat, error) {
	return s.store.ListChatsForPatron(ctx, patronID)
}

func (s *chatService) AssignedChats(ctx context.Context, librarianID string) ([]domain.Chat, error) {
	return s.store.ListAssignedTo(ctx, librarianID)
}

func (s *chatService) UnassignedChats(ctx context.Context) ([]domain.Chat, error) {
	return s.coordinator.Queue(ctx)
}

func (s *chatService) Claim(ctx context.Context, chatID string, librarian domain.Identity) (*domain.Chat, error) {
	chat, err := s.coordinator.Claim(ctx, chatID, librarian.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyAssigned) {
			audit.Log(ctx, audit.ActionClaimLost, librarian.UserID, chatID, "claim lost the race")
		}
		return nil, err
	}

	s.events.ChatAssigned(ctx, chat)
	audit.Log(ctx, audit.ActionClaim, librarian.UserID, chatID, "chat claimed")
	return chat, nil
}

func (s *chatService) CloseChat(ctx context.Context, chatID string, librarian domain.Identity) (*domain.Chat, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.Status == domain.StatusWaiting {
		return nil, domain.ErrNotActive
	}
	if !chat.IsParticipant(librarian) {
		return nil, domain.ErrNotParticipant
	}

	closed, err := s.registry.Close(ctx, chatID)
	if err != nil {
		return nil, err
	}

	s.events.ChatClosed(ctx, closed)
	audit.Log(ctx, audit.ActionClose, librarian.UserID, chatID, "chat closed")
	return closed, nil
}

// History returns the full ordered message history, read through the
// cache. Concurrent fetches for the same chat are collapsed; the
// read-through itself runs under the registry's chat lock so a
// populate is always consistent with concurrent appends.
func (s *chatService) History(ctx context.Context, chatID string, viewer domain.Identity) ([]domain.Message, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsParticipant(viewer) {
		return nil, domain.ErrNotParticipant
	}

	result, err, _ := s.sf.Do(chatID, func() (interface{}, error) {
		return s.registry.History(ctx, chatID, s.cacheTTL)
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Message), nil
}

func (s *chatService) HandleBind(ctx context.Context, c *hub.Client, chatID string) (*domain.Chat, error) {
	chat, err := s.registry.Bind(ctx, c, chatID)
	if err != nil {
		return nil, err
	}
	audit.Log(ctx, audit.ActionBind, c.Identity.UserID, chatID, "connection bound to chat")
	return chat, nil
}

func (s *chatService) HandleSend(ctx context.Context, c *hub.Client, content string) (*domain.Message, error) {
	msg, err := s.registry.Send(ctx, c, content)
	if err != nil {
		return nil, err
	}
	audit.Log(ctx, audit.ActionSend, c.Identity.UserID, msg.ChatID, "message sent")
	return msg, nil
}

func (s *chatService) HandleDisconnect(ctx context.Context, c *hub.Client) {
	s.registry.Disconnect(c)
	if chatID := c.BoundChat(); chatID != "" {
		audit.Log(ctx, audit.ActionDisconnect, c.Identity.UserID, chatID, "connection closed")
	}
}
