package domain

import "time"

// Message is one immutable chat message. Seq is assigned by the store,
// monotonically increasing and gapless per chat; it is the total order
// every subscriber observes.
type Message struct {
	ChatID     string    `gorm:"primaryKey;size:36" json:"chat_id"`
	Seq        int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	SenderID   string    `gorm:"size:36;not null" json:"sender_id"`
	SenderName string    `gorm:"size:255" json:"sender_name"`
	SenderRole Role      `gorm:"size:16;not null" json:"sender_role"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}
