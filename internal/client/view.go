package client

import (
	"context"
	"sync"

	"github.com/libren/support-chat/internal/domain"
)

// UnassignedView is a librarian's local copy of the claim queue. A
// claim removes the chat from the view immediately; if the claim turns
// out to have lost the race the removal simply stands, since the chat
// is gone from the queue either way. Other failures restore the entry.
type UnassignedView struct {
	api *APIClient

	mu    sync.Mutex
	chats []domain.Chat
}

func NewUnassignedView(api *APIClient) *UnassignedView {
	return &UnassignedView{api: api}
}

// Refresh replaces the view with the server's current queue.
func (v *UnassignedView) Refresh(ctx context.Context) error {
	chats, err := v.api.UnassignedChats(ctx)
	if err != nil {
		return err
	}

	v.mu.Lock()
	v.chats = chats
	v.mu.Unlock()
	return nil
}

// Chats returns a snapshot of the queue in arrival order.
func (v *UnassignedView) Chats() []domain.Chat {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]domain.Chat, len(v.chats))
	copy(out, v.chats)
	return out
}

// Claim removes the chat from the view, then attempts the claim. A
// lost race is reconciled silently: the entry stays removed and no
// error surfaces. Any other failure puts the entry back and returns
// the error.
func (v *UnassignedView) Claim(ctx context.Context, chatID string) (*domain.Chat, error) {
	removed, idx := v.remove(chatID)

	chat, err := v.api.Claim(ctx, chatID)
	if err != nil {
		if HasCode(err, domain.ErrCodeAlreadyAssigned) {
			return nil, nil
		}
		if removed != nil {
			v.restore(*removed, idx)
		}
		return nil, err
	}
	return chat, nil
}

func (v *UnassignedView) remove(chatID string) (*domain.Chat, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, c := range v.chats {
		if c.ID == chatID {
			removed := c
			v.chats = append(v.chats[:i], v.chats[i+1:]...)
			return &removed, i
		}
	}
	return nil, -1
}

func (v *UnassignedView) restore(chat domain.Chat, idx int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if idx < 0 || idx > len(v.chats) {
		idx = len(v.chats)
	}
	v.chats = append(v.chats[:idx], append([]domain.Chat{chat}, v.chats[idx:]...)...)
}
