package audit

import (
	"context"

	"github.com/libren/support-chat/pkg/log"
)

// Audit actions for the support-chat service.
const (
	ActionCreateChat = "chat.create"
	ActionClaim      = "chat.claim"
	ActionClaimLost  = "chat.claim_lost"
	ActionClose      = "chat.close"
	ActionBind       = "chat.bind"
	ActionSend       = "chat.send"
	ActionDisconnect = "chat.disconnect"
)

const fieldAction = "action"

// Log emits a structured audit entry via the context logger.
func Log(ctx context.Context, action, userID, chatID, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(fieldAction, action).
		Str(log.FieldUserID, userID).
		Str(log.FieldChatID, chatID).
		Msg(msg)
}
