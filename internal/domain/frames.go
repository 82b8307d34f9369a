package domain

import "errors"

// ClientFrame is the only client→server frame on the persistent
// connection. The first frame on a connection declares the chat id; an
// empty Content on that frame binds the connection without producing a
// visible message.
type ClientFrame struct {
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}

// Server→client traffic is the persisted Message itself, plus error
// frames for failed sends so the sender never sees a message as sent
// that was not persisted.

// Error codes carried in error frames and API responses.
const (
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeAlreadyAssigned = "ALREADY_ASSIGNED"
	ErrCodeNotActive       = "NOT_ACTIVE"
	ErrCodeChatClosed      = "CHAT_CLOSED"
	ErrCodeEmptyContent    = "EMPTY_CONTENT"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeInternalError   = "INTERNAL_ERROR"
)

// ErrorFrame is sent to the offending connection only, never fanned out.
type ErrorFrame struct {
	ChatID string     `json:"chat_id,omitempty"`
	Error  FrameError `json:"error"`
}

type FrameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorFrame builds an error frame for a failed client frame.
func NewErrorFrame(chatID, code, message string) *ErrorFrame {
	return &ErrorFrame{
		ChatID: chatID,
		Error:  FrameError{Code: code, Message: message},
	}
}

// ErrorCode maps a domain error to its wire code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrChatNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrAlreadyAssigned):
		return ErrCodeAlreadyAssigned
	case errors.Is(err, ErrNotActive):
		return ErrCodeNotActive
	case errors.Is(err, ErrChatClosed):
		return ErrCodeChatClosed
	case errors.Is(err, ErrEmptyContent):
		return ErrCodeEmptyContent
	case errors.Is(err, ErrNotParticipant):
		return ErrCodeForbidden
	case errors.Is(err, ErrNotBound), errors.Is(err, ErrRebindNotAllowed):
		return ErrCodeBadRequest
	default:
		return ErrCodeInternalError
	}
}
