package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/libren/support-chat/internal/domain"
	"github.com/libren/support-chat/pkg/log"
)

var (
	ErrNoChatSelected = errors.New("no chat selected")
	ErrNotConnected   = errors.New("not connected")
	ErrChatIsClosed   = errors.New("chat is closed")
	ErrNotPermitted   = errors.New("role does not permit this action")
)

// Events are the controller's callbacks into the UI layer. Nil
// callbacks are skipped.
type Events struct {
	OnHistory      func(msgs []domain.Message)
	OnMessage      func(msg domain.Message)
	OnError        func(frameErr domain.FrameError)
	OnDisconnected func(willRetry bool)
}

// ChatController drives one selected chat over the persistent
// connection. Both roles use the same controller; role differences are
// expressed through Capabilities rather than separate code paths.
//
// The controller reconnects on transport failure with exponential
// backoff and refetches full history after every (re)connect, since
// messages fanned out while the connection was down are lost to it.
// A normal server close ends the session without retrying.
type ChatController struct {
	api     *APIClient
	wsURL   string
	caps    domain.Capabilities
	backoff Backoff
	events  Events

	mu     sync.Mutex
	chatID string
	closed bool
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

func NewChatController(api *APIClient, wsURL string, role domain.Role, events Events) *ChatController {
	return &ChatController{
		api:     api,
		wsURL:   wsURL,
		caps:    domain.CapabilitiesFor(role),
		backoff: DefaultBackoff(),
		events:  events,
	}
}

// WithBackoff overrides the reconnect policy.
func (cc *ChatController) WithBackoff(b Backoff) *ChatController {
	cc.backoff = b
	return cc
}

// Open selects a chat and starts the connection loop. Any previously
// selected chat is detached first.
func (cc *ChatController) Open(ctx context.Context, chat *domain.Chat) {
	cc.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	cc.mu.Lock()
	cc.chatID = chat.ID
	cc.closed = chat.Status == domain.StatusClosed
	cc.cancel = cancel
	cc.done = done
	cc.mu.Unlock()

	go cc.run(runCtx, chat.ID, done)
}

// Stop detaches from the current chat and waits for the connection
// loop to exit.
func (cc *ChatController) Stop() {
	cc.mu.Lock()
	cancel := cc.cancel
	done := cc.done
	conn := cc.conn
	cc.cancel = nil
	cc.done = nil
	cc.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
	<-done
}

// Send writes a message frame for the selected chat. Sends into a chat
// known to be closed are refused locally without touching the wire.
func (cc *ChatController) Send(content string) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if cc.chatID == "" {
		return ErrNoChatSelected
	}
	if cc.closed {
		return ErrChatIsClosed
	}
	if cc.conn == nil {
		return ErrNotConnected
	}
	return cc.conn.WriteJSON(domain.ClientFrame{ChatID: cc.chatID, Content: content})
}

// Claim atomically assigns the chat to this librarian.
func (cc *ChatController) Claim(ctx context.Context, chatID string) (*domain.Chat, error) {
	if !cc.caps.CanClaim {
		return nil, ErrNotPermitted
	}
	return cc.api.Claim(ctx, chatID)
}

// Close ends the chat for both sides.
func (cc *ChatController) Close(ctx context.Context, chatID string) (*domain.Chat, error) {
	if !cc.caps.CanClose {
		return nil, ErrNotPermitted
	}
	chat, err := cc.api.CloseChat(ctx, chatID)
	if err != nil {
		return nil, err
	}

	cc.mu.Lock()
	if cc.chatID == chatID {
		cc.closed = true
	}
	cc.mu.Unlock()
	return chat, nil
}

// run dials, binds, and pumps frames until the chat is detached, the
// server closes normally, or the retry budget runs out.
func (cc *ChatController) run(ctx context.Context, chatID string, done chan struct{}) {
	defer close(done)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := cc.dial(ctx)
		if err != nil {
			attempt++
			l := log.L()
			l.Warn().Err(err).Str(log.FieldChatID, chatID).Int("attempt", attempt).Msg("connect failed")
			cc.notifyDisconnected(true)
			if !cc.backoff.Wait(ctx, attempt) {
				cc.notifyDisconnected(false)
				return
			}
			continue
		}
		attempt = 0

		// Bind before the conn is published: until then the run
		// goroutine is the connection's only writer, so the bind frame
		// can never interleave with a concurrent Send.
		if err := conn.WriteJSON(domain.ClientFrame{ChatID: chatID}); err != nil {
			conn.Close()
			attempt++
			cc.notifyDisconnected(true)
			if !cc.backoff.Wait(ctx, attempt) {
				cc.notifyDisconnected(false)
				return
			}
			continue
		}

		// Publish under the same lock Stop reads the conn through, and
		// re-check cancellation: a Stop that ran before the publish has
		// no conn to close, so it must not be missed here.
		cc.mu.Lock()
		if ctx.Err() != nil {
			cc.mu.Unlock()
			conn.Close()
			return
		}
		cc.conn = conn
		cc.mu.Unlock()

		// A parked read does not observe cancellation; closing the
		// conn is what unblocks it.
		watch := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-watch:
			}
		}()

		normal := cc.session(ctx, conn, chatID)
		close(watch)

		cc.mu.Lock()
		cc.conn = nil
		closed := cc.closed
		cc.mu.Unlock()

		if normal || closed || ctx.Err() != nil {
			cc.notifyDisconnected(false)
			return
		}

		attempt++
		cc.notifyDisconnected(true)
		if !cc.backoff.Wait(ctx, attempt) {
			cc.notifyDisconnected(false)
			return
		}
	}
}

// session refetches history and reads frames until the transport ends.
// It reports whether the server closed normally, which suppresses the
// reconnect.
func (cc *ChatController) session(ctx context.Context, conn *websocket.Conn, chatID string) bool {
	defer conn.Close()

	// Refetch after every (re)connect: frames fanned out while the
	// connection was down never reach this client.
	if msgs, err := cc.api.History(ctx, chatID); err == nil {
		if cc.events.OnHistory != nil {
			cc.events.OnHistory(msgs)
		}
	} else {
		l := log.L()
		l.Warn().Err(err).Str(log.FieldChatID, chatID).Msg("history refetch failed")
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return websocket.IsCloseError(err, websocket.CloseNormalClosure)
		}
		cc.handleFrame(raw)
	}
}

func (cc *ChatController) handleFrame(raw []byte) {
	var head struct {
		Error *domain.FrameError `json:"error"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		l := log.L()
		l.Debug().Err(err).Msg("malformed server frame")
		return
	}

	if head.Error != nil {
		if head.Error.Code == domain.ErrCodeChatClosed {
			cc.mu.Lock()
			cc.closed = true
			cc.mu.Unlock()
		}
		if cc.events.OnError != nil {
			cc.events.OnError(*head.Error)
		}
		return
	}

	var msg domain.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		l := log.L()
		l.Debug().Err(err).Msg("malformed message frame")
		return
	}
	if cc.events.OnMessage != nil {
		cc.events.OnMessage(msg)
	}
}

func (cc *ChatController) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, cc.wsURL, nil)
	return conn, err
}

func (cc *ChatController) notifyDisconnected(willRetry bool) {
	if cc.events.OnDisconnected != nil {
		cc.events.OnDisconnected(willRetry)
	}
}
