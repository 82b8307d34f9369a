package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/libren/support-chat/internal/domain"
	"github.com/libren/support-chat/pkg/response"
)

// chatHarness scripts the server side of a controller session: a
// history endpoint whose contents grow over time and a websocket
// endpoint whose behavior is driven per connection.
type chatHarness struct {
	srv      *httptest.Server
	history  atomic.Value // []domain.Message
	connects atomic.Int64
	onConn   func(n int64, conn *websocket.Conn)
}

func newChatHarness(t *testing.T, onConn func(n int64, conn *websocket.Conn)) *chatHarness {
	t.Helper()
	h := &chatHarness{onConn: onConn}
	h.history.Store([]domain.Message{})

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		n := h.connects.Add(1)

		// Consume the bind frame before scripting the session.
		var frame domain.ClientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		if frame.ChatID != "chat-1" || frame.Content != "" {
			t.Errorf("bind frame = %+v, want empty frame for chat-1", frame)
		}
		h.onConn(n, conn)
	})
	mux.HandleFunc("/api/v1/chats/chat-1/messages", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response.Response{Success: true, Data: h.history.Load()})
	})

	h.srv = httptest.NewServer(mux)
	t.Cleanup(h.srv.Close)
	return h
}

func (h *chatHarness) wsURL() string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"
}

func (h *chatHarness) setHistory(msgs []domain.Message) {
	h.history.Store(msgs)
}

func fastBackoff() Backoff {
	return Backoff{Initial: 10 * time.Millisecond, Factor: 2, Max: 50 * time.Millisecond, MaxAttempts: 5}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestController_ReconnectsAndRefetchesHistory(t *testing.T) {
	var sessionHold = make(chan struct{})
	h := newChatHarness(t, func(n int64, conn *websocket.Conn) {
		switch n {
		case 1:
			// Deliver one message, then drop the transport abruptly.
			data, _ := json.Marshal(domain.Message{ChatID: "chat-1", Seq: 1, Content: "first"})
			conn.WriteMessage(websocket.TextMessage, data)
			time.Sleep(50 * time.Millisecond)
			conn.Close()
		default:
			<-sessionHold
			conn.Close()
		}
	})
	defer close(sessionHold)

	var histories atomic.Int64
	var messages atomic.Int64
	cc := NewChatController(NewAPIClient(h.srv.URL, "tok"), h.wsURL(), domain.RoleUser, Events{
		OnHistory: func(msgs []domain.Message) {
			histories.Add(1)
			if histories.Load() == 2 && len(msgs) != 1 {
				t.Errorf("second history = %v, want the missed message", msgs)
			}
		},
		OnMessage: func(domain.Message) { messages.Add(1) },
	}).WithBackoff(fastBackoff())

	cc.Open(context.Background(), &domain.Chat{ID: "chat-1", Status: domain.StatusActive})
	defer cc.Stop()

	waitFor(t, "live message", func() bool { return messages.Load() == 1 })

	// The message lands in history before the transport drops, so the
	// refetch after reconnecting recovers it.
	h.setHistory([]domain.Message{{ChatID: "chat-1", Seq: 1, Content: "first"}})

	waitFor(t, "reconnect", func() bool { return h.connects.Load() >= 2 })
	waitFor(t, "history refetch", func() bool { return histories.Load() >= 2 })
}

func TestController_NormalCloseSuppressesReconnect(t *testing.T) {
	h := newChatHarness(t, func(n int64, conn *websocket.Conn) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
			time.Now().Add(time.Second))
		// Wait for the client's close response before tearing down.
		conn.ReadMessage()
		conn.Close()
	})

	done := make(chan bool, 4)
	cc := NewChatController(NewAPIClient(h.srv.URL, "tok"), h.wsURL(), domain.RoleUser, Events{
		OnDisconnected: func(willRetry bool) { done <- willRetry },
	}).WithBackoff(fastBackoff())

	cc.Open(context.Background(), &domain.Chat{ID: "chat-1", Status: domain.StatusActive})
	defer cc.Stop()

	select {
	case willRetry := <-done:
		if willRetry {
			t.Fatal("OnDisconnected(willRetry=true) after normal close, want false")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for disconnect callback")
	}

	time.Sleep(100 * time.Millisecond)
	if n := h.connects.Load(); n != 1 {
		t.Fatalf("connects = %d, want 1 (no reconnect after normal close)", n)
	}
}

func TestController_StopReturnsUnderConnectRaces(t *testing.T) {
	h := newChatHarness(t, func(n int64, conn *websocket.Conn) {
		// Hold the session open and verify every inbound frame is
		// intact JSON; interleaved writers would corrupt frames.
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame domain.ClientFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				t.Errorf("malformed client frame %q: %v", raw, err)
				return
			}
			if frame.ChatID != "chat-1" {
				t.Errorf("frame chat id = %q, want chat-1", frame.ChatID)
			}
		}
	})

	cc := NewChatController(NewAPIClient(h.srv.URL, "tok"), h.wsURL(), domain.RoleUser, Events{}).
		WithBackoff(fastBackoff())

	// Hammer Send from another goroutine; errors while disconnected
	// are expected, hangs and corrupt frames are not.
	stopSending := make(chan struct{})
	go func() {
		for {
			select {
			case <-stopSending:
				return
			default:
				cc.Send("still here")
			}
		}
	}()
	defer close(stopSending)

	for i := 0; i < 30; i++ {
		finished := make(chan struct{})
		go func(pause time.Duration) {
			cc.Open(context.Background(), &domain.Chat{ID: "chat-1", Status: domain.StatusActive})
			time.Sleep(pause)
			cc.Stop()
			close(finished)
		}(time.Duration(i%4) * time.Millisecond)

		select {
		case <-finished:
		case <-time.After(5 * time.Second):
			t.Fatal("Stop() did not return")
		}
	}
}

func TestController_SendRefusedAfterChatClosed(t *testing.T) {
	cc := NewChatController(nil, "", domain.RoleUser, Events{})
	cc.chatID = "chat-1"

	// A CHAT_CLOSED error frame marks the chat closed locally.
	frame, _ := json.Marshal(domain.NewErrorFrame("chat-1", domain.ErrCodeChatClosed, "chat is closed"))
	cc.handleFrame(frame)

	if err := cc.Send("too late"); err != ErrChatIsClosed {
		t.Fatalf("Send() error = %v, want ErrChatIsClosed", err)
	}
}

func TestController_RoleCapabilities(t *testing.T) {
	cc := NewChatController(nil, "", domain.RoleUser, Events{})

	if _, err := cc.Claim(context.Background(), "chat-1"); err != ErrNotPermitted {
		t.Fatalf("Claim() as user error = %v, want ErrNotPermitted", err)
	}
	if _, err := cc.Close(context.Background(), "chat-1"); err != ErrNotPermitted {
		t.Fatalf("Close() as user error = %v, want ErrNotPermitted", err)
	}
}
