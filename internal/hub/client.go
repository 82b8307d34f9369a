package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/libren/support-chat/internal/config"
	"github.com/libren/support-chat/internal/domain"
	"github.com/libren/support-chat/pkg/log"
)

// Client is one live connection. It carries the authenticated identity
// resolved at upgrade time and, after the first frame, the single chat
// it is bound to.
type Client struct {
	ID       string
	Hub      *Hub
	Conn     *websocket.Conn
	Send     chan []byte
	Identity domain.Identity
	config   config.WebSocketConfig

	mu         sync.RWMutex
	boundChat  string
	sendClosed bool
}

func NewClient(id string, hub *Hub, conn *websocket.Conn, identity domain.Identity, cfg config.WebSocketConfig) *Client {
	sendBuf := cfg.SendBuffer
	if sendBuf <= 0 {
		sendBuf = 256
	}
	return &Client{
		ID:       id,
		Hub:      hub,
		Conn:     conn,
		Send:     make(chan []byte, sendBuf),
		Identity: identity,
		config:   cfg,
	}
}

// Bind records the chat this connection belongs to. It succeeds once;
// rebinding requires a new connection.
func (c *Client) Bind(chatID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.boundChat != "" && c.boundChat != chatID {
		return domain.ErrRebindNotAllowed
	}
	c.boundChat = chatID
	return nil
}

// BoundChat returns the chat id the connection is bound to, or "".
func (c *Client) BoundChat() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.boundChat
}

// ReadPump reads frames until the transport fails or closes, then
// unregisters the connection. A missed pong tears the connection down,
// reclaiming idle connections.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Debug().Err(err).Str(log.FieldConnID, c.ID).Msg("websocket read error")
			}
			break
		}

		handler(c, message)
	}
}

// WritePump drains the send channel onto the transport and keeps the
// connection alive with periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// closeSend closes the send channel exactly once. Only the hub calls
// this, when it unregisters the client.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.Send)
}

// SendJSON marshals v onto the send channel. A full channel drops the
// frame rather than blocking fan-out, and a torn-down connection drops
// it outright; the hub may unregister the client while its read
// handler is still mid-frame.
func (c *Client) SendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sendClosed {
		return nil
	}

	select {
	case c.Send <- data:
	default:
	}
	return nil
}
