package domain

import "time"

// ChatStatus is the lifecycle state of a support chat.
type ChatStatus string

const (
	StatusWaiting ChatStatus = "waiting"
	StatusActive  ChatStatus = "active"
	StatusClosed  ChatStatus = "closed"
)

// Chat is a support session between one patron and at most one librarian.
//
// Invariant: Status == waiting iff LibrarianID is nil. Once assigned the
// librarian never changes; once closed the chat never reopens.
type Chat struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Status      ChatStatus `gorm:"size:16;not null;index" json:"status"`
	PatronID    string     `gorm:"size:36;not null;index" json:"patron_id"`
	LibrarianID *string    `gorm:"size:36;index" json:"librarian_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IsParticipant reports whether the given identity may read or write
// this chat: the owning patron, or the assigned librarian.
func (c *Chat) IsParticipant(id Identity) bool {
	switch id.Role {
	case RoleUser:
		return c.PatronID == id.UserID
	case RoleLibrarian:
		return c.LibrarianID != nil && *c.LibrarianID == id.UserID
	default:
		return false
	}
}
