package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/libren/support-chat/internal/config"
	"github.com/libren/support-chat/internal/domain"
	"github.com/libren/support-chat/internal/hub"
	"github.com/libren/support-chat/internal/service"
	"github.com/libren/support-chat/pkg/log"
)

// WSHandler upgrades connections and dispatches inbound frames. One
// connection carries one chat: the first frame binds it, every later
// frame must repeat the same chat id.
type WSHandler struct {
	service  service.ChatService
	hub      *hub.Hub
	config   config.WebSocketConfig
	upgrader websocket.Upgrader
}

func NewWSHandler(svc service.ChatService, h *hub.Hub, cfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		service: svc,
		hub:     h,
		config:  cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Serve handles GET /ws. The identity was resolved by the auth
// middleware before the upgrade.
func (h *WSHandler) Serve(c *gin.Context) {
	identity := identityFrom(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.NewString(), h.hub, conn, identity, h.config)
	h.hub.Register(client)

	l := log.L()
	l.Info().
		Str(log.FieldConnID, client.ID).
		Str(log.FieldUserID, identity.UserID).
		Str(log.FieldRole, string(identity.Role)).
		Msg("websocket connected")

	go client.WritePump()
	client.ReadPump(h.handleFrame)

	h.service.HandleDisconnect(c.Request.Context(), client)
	dl := log.L()
	dl.Info().Str(log.FieldConnID, client.ID).Msg("websocket disconnected")
}

// handleFrame processes one client frame. Errors go back to the
// offending connection only; they are never fanned out.
func (h *WSHandler) handleFrame(c *hub.Client, raw []byte) {
	logger := log.L().With().
		Str(log.FieldConnID, c.ID).
		Str(log.FieldUserID, c.Identity.UserID).
		Logger()
	ctx := log.WithLogger(context.Background(), logger)

	var frame domain.ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.SendJSON(domain.NewErrorFrame("", domain.ErrCodeBadRequest, "malformed frame"))
		return
	}
	if frame.ChatID == "" {
		c.SendJSON(domain.NewErrorFrame("", domain.ErrCodeBadRequest, "chat_id is required"))
		return
	}

	bound := c.BoundChat()
	if bound == "" {
		if _, err := h.service.HandleBind(ctx, c, frame.ChatID); err != nil {
			c.SendJSON(domain.NewErrorFrame(frame.ChatID, domain.ErrorCode(err), err.Error()))
			return
		}
		// An empty first frame only binds; no message is produced.
		if frame.Content == "" {
			return
		}
	} else if frame.ChatID != bound {
		c.SendJSON(domain.NewErrorFrame(frame.ChatID, domain.ErrCodeBadRequest, "connection is bound to another chat"))
		return
	}

	if _, err := h.service.HandleSend(ctx, c, frame.Content); err != nil {
		c.SendJSON(domain.NewErrorFrame(frame.ChatID, domain.ErrorCode(err), err.Error()))
	}
}
