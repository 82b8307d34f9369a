package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/libren/support-chat/internal/assign"
	appcache "github.com/libren/support-chat/internal/cache"
	"github.com/libren/support-chat/internal/config"
	"github.com/libren/support-chat/internal/domain"
	"github.com/libren/support-chat/internal/events"
	"github.com/libren/support-chat/internal/hub"
	"github.com/libren/support-chat/internal/registry"
	"github.com/libren/support-chat/internal/service"
	"github.com/libren/support-chat/internal/store"
	"github.com/libren/support-chat/pkg/jwt"
	"github.com/libren/support-chat/pkg/response"
)

type testServer struct {
	srv     *httptest.Server
	manager *jwt.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("underlying db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	st := store.NewGormStore(db)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	wsCfg := config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     16,
	}

	h := hub.NewHub(wsCfg)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)

	msgCache := appcache.NewNoopCache()
	reg := registry.New(st, msgCache, h)
	coord := assign.NewCoordinator(st, reg)
	svc := service.NewChatService(st, reg, coord, time.Minute, events.NewNoopPublisher())

	manager := jwt.NewManager([]byte("test-secret"), "support-chat", time.Hour)

	r := gin.New()
	r.GET("/health", Health)
	api := r.Group("/api/v1", Auth(manager))
	NewHTTPHandler(svc).RegisterRoutes(api)
	api.GET("/ws", NewWSHandler(svc, h, wsCfg).Serve)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, manager: manager}
}

func (ts *testServer) token(t *testing.T, userID, name, role string) string {
	t.Helper()
	tok, err := ts.manager.Generate(userID, name, role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return tok
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) (*http.Response, response.Response) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env response.Response
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp, env
}

func decodeData(t *testing.T, env response.Response, out interface{}) {
	t.Helper()
	raw, err := json.Marshal(env.Data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
}

func (ts *testServer) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/api/v1/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// serverFrame covers both server→client shapes: a persisted message or
// an error frame.
type serverFrame struct {
	ChatID  string             `json:"chat_id"`
	Seq     int64              `json:"id"`
	Content string             `json:"content"`
	Error   *domain.FrameError `json:"error"`
}

func readFrame(t *testing.T, conn *websocket.Conn) serverFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var f serverFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("unmarshal frame %s: %v", raw, err)
	}
	return f
}

func sendFrame(t *testing.T, conn *websocket.Conn, chatID, content string) {
	t.Helper()
	if err := conn.WriteJSON(domain.ClientFrame{ChatID: chatID, Content: content}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func TestChatLifecycle(t *testing.T) {
	ts := newTestServer(t)
	patron := ts.token(t, "p1", "Patron One", "user")
	librarian := ts.token(t, "l1", "Librarian One", "librarian")
	rival := ts.token(t, "l2", "Librarian Two", "librarian")

	// Patron opens a chat.
	resp, env := ts.do(t, http.MethodPost, "/api/v1/chats", patron, gin.H{"title": "Lost card"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create chat status = %d, want 201", resp.StatusCode)
	}
	var chat domain.Chat
	decodeData(t, env, &chat)
	if chat.Status != domain.StatusWaiting {
		t.Fatalf("status = %q, want %q", chat.Status, domain.StatusWaiting)
	}

	// The chat shows up in the librarian queue.
	_, env = ts.do(t, http.MethodGet, "/api/v1/librarian/chats/unassigned", librarian, nil)
	var queue []domain.Chat
	decodeData(t, env, &queue)
	if len(queue) != 1 || queue[0].ID != chat.ID {
		t.Fatalf("queue = %v, want [%s]", queue, chat.ID)
	}

	// First claim wins, the rival gets a conflict.
	resp, _ = ts.do(t, http.MethodPost, "/api/v1/librarian/chats/"+chat.ID+"/assign", librarian, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("claim status = %d, want 200", resp.StatusCode)
	}
	resp, env = ts.do(t, http.MethodPost, "/api/v1/librarian/chats/"+chat.ID+"/assign", rival, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("rival claim status = %d, want 409", resp.StatusCode)
	}
	if env.Error == nil || env.Error.Code != domain.ErrCodeAlreadyAssigned {
		t.Fatalf("rival claim error = %v, want %s", env.Error, domain.ErrCodeAlreadyAssigned)
	}

	// Patron binds its connection with an empty first frame.
	patronConn := ts.dial(t, patron)
	sendFrame(t, patronConn, chat.ID, "")

	// Patron's own message confirms the bind took effect.
	sendFrame(t, patronConn, chat.ID, "Hello, I lost my card")
	f := readFrame(t, patronConn)
	if f.Error != nil {
		t.Fatalf("unexpected error frame: %v", f.Error)
	}
	if f.Seq != 1 || f.Content != "Hello, I lost my card" {
		t.Fatalf("frame = %+v, want seq 1", f)
	}

	// The librarian binds with a greeting; both sides receive it.
	libConn := ts.dial(t, librarian)
	sendFrame(t, libConn, chat.ID, "Happy to help")
	for _, conn := range []*websocket.Conn{patronConn, libConn} {
		f = readFrame(t, conn)
		if f.Seq != 2 || f.Content != "Happy to help" {
			t.Fatalf("frame = %+v, want seq 2", f)
		}
	}

	// History over REST matches what was delivered.
	_, env = ts.do(t, http.MethodGet, "/api/v1/chats/"+chat.ID+"/messages", patron, nil)
	var history []domain.Message
	decodeData(t, env, &history)
	if len(history) != 2 || history[1].Content != "Happy to help" {
		t.Fatalf("history = %v, want 2 messages", history)
	}

	// Close, then verify it is a hard barrier for further sends.
	resp, _ = ts.do(t, http.MethodPost, "/api/v1/librarian/chats/"+chat.ID+"/close", librarian, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close status = %d, want 200", resp.StatusCode)
	}

	sendFrame(t, patronConn, chat.ID, "Anyone there?")
	f = readFrame(t, patronConn)
	if f.Error == nil || f.Error.Code != domain.ErrCodeChatClosed {
		t.Fatalf("frame after close = %+v, want %s error", f, domain.ErrCodeChatClosed)
	}

	resp, env = ts.do(t, http.MethodPost, "/api/v1/librarian/chats/"+chat.ID+"/close", librarian, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("double close status = %d, want 409", resp.StatusCode)
	}
	if env.Error == nil || env.Error.Code != domain.ErrCodeNotActive {
		t.Fatalf("double close error = %v, want %s", env.Error, domain.ErrCodeNotActive)
	}
}

func TestWS_BindRejectsNonParticipant(t *testing.T) {
	ts := newTestServer(t)
	patron := ts.token(t, "p1", "Patron One", "user")
	stranger := ts.token(t, "p2", "Patron Two", "user")

	_, env := ts.do(t, http.MethodPost, "/api/v1/chats", patron, gin.H{"title": "Lost card"})
	var chat domain.Chat
	decodeData(t, env, &chat)

	conn := ts.dial(t, stranger)
	sendFrame(t, conn, chat.ID, "")
	f := readFrame(t, conn)
	if f.Error == nil || f.Error.Code != domain.ErrCodeForbidden {
		t.Fatalf("frame = %+v, want %s error", f, domain.ErrCodeForbidden)
	}
}

func TestWS_SecondChatNeedsNewConnection(t *testing.T) {
	ts := newTestServer(t)
	patron := ts.token(t, "p1", "Patron One", "user")

	_, env := ts.do(t, http.MethodPost, "/api/v1/chats", patron, gin.H{"title": "First"})
	var first domain.Chat
	decodeData(t, env, &first)
	_, env = ts.do(t, http.MethodPost, "/api/v1/chats", patron, gin.H{"title": "Second"})
	var second domain.Chat
	decodeData(t, env, &second)

	conn := ts.dial(t, patron)
	sendFrame(t, conn, first.ID, "")
	sendFrame(t, conn, second.ID, "hi")
	f := readFrame(t, conn)
	if f.Error == nil || f.Error.Code != domain.ErrCodeBadRequest {
		t.Fatalf("frame = %+v, want %s error", f, domain.ErrCodeBadRequest)
	}
}

func TestHTTP_AuthAndRoleGuards(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.do(t, http.MethodGet, "/api/v1/chats", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", resp.StatusCode)
	}

	patron := ts.token(t, "p1", "Patron One", "user")
	resp, _ = ts.do(t, http.MethodGet, "/api/v1/librarian/chats/unassigned", patron, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("patron on librarian route status = %d, want 403", resp.StatusCode)
	}
}
