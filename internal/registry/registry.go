package registry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/libren/support-chat/internal/cache"
	"github.com/libren/support-chat/internal/domain"
	"github.com/libren/support-chat/internal/hub"
	"github.com/libren/support-chat/internal/store"
	"github.com/libren/support-chat/pkg/log"
)

// Broadcaster is the connection-manager surface the registry needs.
// *hub.Hub satisfies it.
type Broadcaster interface {
	Subscribe(c *hub.Client, chatID string)
	Unsubscribe(c *hub.Client)
	BroadcastToChat(chatID string, data []byte)
}

// SessionRegistry mediates between the durable store and live
// connections. Every mutating operation on one chat (assign, close,
// append) runs under that chat's lock, so concurrent sends are
// linearized into one order and a close is a hard barrier for any
// in-flight send that loses the race. Unrelated chats never contend.
//
// Construct one per process and pass it explicitly; it is not a
// singleton.
type SessionRegistry struct {
	store store.ChatStore
	cache cache.MessageCache
	hub   Broadcaster

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(st store.ChatStore, ca cache.MessageCache, b Broadcaster) *SessionRegistry {
	return &SessionRegistry{
		store: st,
		cache: ca,
		hub:   b,
		locks: make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing one chat. Locks are created
// lazily and retained for the process lifetime.
func (r *SessionRegistry) lockFor(chatID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[chatID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[chatID] = l
	}
	return l
}

// Bind associates a connection with exactly one chat and adds it to
// the subscriber set. Only participants may bind. Binding to a closed
// chat is allowed (history stays readable); sending into it is not.
func (r *SessionRegistry) Bind(ctx context.Context, c *hub.Client, chatID string) (*domain.Chat, error) {
	l := r.lockFor(chatID)
	l.Lock()
	defer l.Unlock()

	chat, err := r.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsParticipant(c.Identity) {
		return nil, domain.ErrNotParticipant
	}
	if err := c.Bind(chatID); err != nil {
		return nil, err
	}

	r.hub.Subscribe(c, chatID)
	return chat, nil
}

// Send persists the message, then fans it out to the chat's subscriber
// set. The chat lock is held across both steps: fan-out never happens
// for a message that failed to persist, and enqueue order equals
// persisted order for every subscriber.
func (r *SessionRegistry) Send(ctx context.Context, c *hub.Client, content string) (*domain.Message, error) {
	chatID := c.BoundChat()
	if chatID == "" {
		return nil, domain.ErrNotBound
	}

	l := r.lockFor(chatID)
	l.Lock()
	defer l.Unlock()

	msg, err := r.store.AppendMessage(ctx, chatID, c.Identity, content)
	if err != nil {
		return nil, err
	}

	r.invalidate(ctx, chatID)

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	r.hub.BroadcastToChat(chatID, data)
	return msg, nil
}

// Assign runs the store's atomic claim under the chat lock so it is
// linearized with sends and closes on the same chat.
func (r *SessionRegistry) Assign(ctx context.Context, chatID, librarianID string) (*domain.Chat, error) {
	l := r.lockFor(chatID)
	l.Lock()
	defer l.Unlock()

	return r.store.Assign(ctx, chatID, librarianID)
}

// Close transitions the chat to closed. Sends that were waiting on the
// chat lock observe the closed status and fail cleanly.
func (r *SessionRegistry) Close(ctx context.Context, chatID string) (*domain.Chat, error) {
	l := r.lockFor(chatID)
	l.Lock()
	defer l.Unlock()

	chat, err := r.store.Close(ctx, chatID)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, chatID)
	return chat, nil
}

// History returns the full ordered message history, read through the
// cache. The read-through runs under the chat lock: an append that
// invalidated the key cannot interleave with the populate, so the
// cache never serves a snapshot older than the last invalidation.
func (r *SessionRegistry) History(ctx context.Context, chatID string, ttl time.Duration) ([]domain.Message, error) {
	l := r.lockFor(chatID)
	l.Lock()
	defer l.Unlock()

	cached, err := r.cache.Get(ctx, chatID)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		lg := log.Ctx(ctx)
		lg.Warn().Err(err).Str(log.FieldChatID, chatID).Msg("history cache get failed")
	}

	msgs, err := r.store.ListMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, chatID, msgs, ttl); err != nil {
		lg := log.Ctx(ctx)
		lg.Warn().Err(err).Str(log.FieldChatID, chatID).Msg("history cache set failed")
	}
	return msgs, nil
}

// Disconnect removes the connection from its subscriber set. Transport
// failures land here; they never mutate chat status.
func (r *SessionRegistry) Disconnect(c *hub.Client) {
	r.hub.Unsubscribe(c)
}

func (r *SessionRegistry) invalidate(ctx context.Context, chatID string) {
	if err := r.cache.Invalidate(ctx, chatID); err != nil {
		lg := log.Ctx(ctx)
		lg.Warn().Err(err).Str(log.FieldChatID, chatID).Msg("history cache invalidation failed")
	}
}
