package domain

import "errors"

var (
	// ErrChatNotFound means the chat id does not reference an existing chat.
	ErrChatNotFound = errors.New("chat not found")

	// ErrAlreadyAssigned means a claim lost the race: the chat is no
	// longer waiting. Benign on the losing side, never user-facing.
	ErrAlreadyAssigned = errors.New("chat already assigned")

	// ErrNotActive means close was attempted on a chat that is not
	// active (still waiting, or already closed).
	ErrNotActive = errors.New("chat is not active")

	// ErrChatClosed means a send was attempted after closure. Closure
	// is a barrier: no message is appended once the status is closed.
	ErrChatClosed = errors.New("chat is closed")

	// ErrEmptyContent rejects degenerate sends before persistence.
	ErrEmptyContent = errors.New("message content is empty")

	// ErrNotParticipant means the identity is neither the owning patron
	// nor the assigned librarian of the chat.
	ErrNotParticipant = errors.New("not a participant of this chat")

	// ErrNotBound means a send arrived on a connection that never
	// declared its chat.
	ErrNotBound = errors.New("connection is not bound to a chat")

	// ErrRebindNotAllowed means a frame named a different chat than the
	// one the connection is bound to. Rebinding requires a new connection.
	ErrRebindNotAllowed = errors.New("connection is already bound to another chat")
)
