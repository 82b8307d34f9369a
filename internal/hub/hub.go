package hub

import (
	"context"
	"sync"

	"github.com/libren/support-chat/internal/config"
	"github.com/libren/support-chat/pkg/log"
)

// Hub owns every live connection and the per-chat subscriber sets.
// Fan-out of one message costs O(subscribers of that chat), not
// O(all connections).
type Hub struct {
	clients    map[string]*Client            // connID -> client
	chats      map[string]map[string]*Client // chatID -> connID -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *outbound
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

type outbound struct {
	ChatID string
	Data   []byte
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		chats:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *outbound, 256),
		config:     cfg,
	}
}

// Run multiplexes registration and fan-out on a single goroutine, so
// enqueue order on the broadcast channel is delivery order.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldConnID, client.ID).Msg("connection registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				h.detachLocked(client)
				delete(h.clients, client.ID)
				client.closeSend()
			}
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldConnID, client.ID).Msg("connection unregistered")

		case msg := <-h.broadcast:
			h.mu.RLock()
			subs := h.chats[msg.ChatID]
			for _, client := range subs {
				select {
				case client.Send <- msg.Data:
				default:
					// Subscriber cannot keep up; drop the connection,
					// its controller will reconnect and refetch.
					go h.Unregister(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds the client to a chat's subscriber set. A client
// subscribes to at most one chat for its whole lifetime.
func (h *Hub) Subscribe(client *Client, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.chats[chatID]; !ok {
		h.chats[chatID] = make(map[string]*Client)
	}
	h.chats[chatID][client.ID] = client
	l := log.L()
	l.Info().
		Str(log.FieldConnID, client.ID).
		Str(log.FieldChatID, chatID).
		Msg("connection subscribed to chat")
}

// Unsubscribe removes the client from its chat's subscriber set.
// Idempotent: unsubscribing an unknown client is a no-op.
func (h *Hub) Unsubscribe(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(client)
}

func (h *Hub) detachLocked(client *Client) {
	for chatID, subs := range h.chats {
		if _, ok := subs[client.ID]; ok {
			delete(subs, client.ID)
			if len(subs) == 0 {
				delete(h.chats, chatID)
			}
		}
	}
}

// BroadcastToChat enqueues raw bytes for every subscriber of the chat.
func (h *Hub) BroadcastToChat(chatID string, data []byte) {
	h.broadcast <- &outbound{ChatID: chatID, Data: data}
}

func (h *Hub) SubscriberCount(chatID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.chats[chatID])
}
