package assign

import (
	"context"
	"errors"

	"github.com/libren/support-chat/internal/domain"
	"github.com/libren/support-chat/internal/registry"
	"github.com/libren/support-chat/internal/store"
	"github.com/libren/support-chat/pkg/log"
)

// Coordinator resolves the unassigned-chat queue and enforces
// at-most-one-librarian-per-chat. The queue it hands out is a snapshot;
// Claim re-validates against the store's atomic assign, so a stale
// snapshot can never produce two owners.
type Coordinator struct {
	store    store.ChatStore
	registry *registry.SessionRegistry
}

func NewCoordinator(st store.ChatStore, reg *registry.SessionRegistry) *Coordinator {
	return &Coordinator{store: st, registry: reg}
}

// Queue returns the waiting chats, oldest first. The snapshot may be
// stale by the time a claim lands.
func (c *Coordinator) Queue(ctx context.Context) ([]domain.Chat, error) {
	return c.store.ListUnassigned(ctx)
}

// Claim takes ownership of a waiting chat for the librarian. Exactly
// one of two racing claims succeeds; the loser gets ErrAlreadyAssigned,
// which callers treat as a benign lost race, not a failure.
func (c *Coordinator) Claim(ctx context.Context, chatID, librarianID string) (*domain.Chat, error) {
	chat, err := c.registry.Assign(ctx, chatID, librarianID)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyAssigned) {
			l := log.Ctx(ctx)
			l.Debug().
				Str(log.FieldChatID, chatID).
				Str(log.FieldUserID, librarianID).
				Msg("claim lost the race")
		}
		return nil, err
	}
	return chat, nil
}
