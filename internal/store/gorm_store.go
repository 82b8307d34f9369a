package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/libren/support-chat/internal/domain"
)

// GormStore implements ChatStore on a relational database via GORM.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the chat and message tables.
func (s *GormStore) Migrate() error {
	return s.db.AutoMigrate(&domain.Chat{}, &domain.Message{})
}

func (s *GormStore) CreateChat(ctx context.Context, patronID, title string) (*domain.Chat, error) {
	chat := &domain.Chat{
		ID:        uuid.New().String(),
		Title:     title,
		Status:    domain.StatusWaiting,
		PatronID:  patronID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(chat).Error; err != nil {
		return nil, err
	}
	return chat, nil
}

func (s *GormStore) GetChat(ctx context.Context, chatID string) (*domain.Chat, error) {
	var chat domain.Chat
	err := s.db.WithContext(ctx).First(&chat, "id = ?", chatID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrChatNotFound
		}
		return nil, err
	}
	return &chat, nil
}

func (s *GormStore) ListChatsForPatron(ctx context.Context, patronID string) ([]domain.Chat, error) {
	var chats []domain.Chat
	err := s.db.WithContext(ctx).
		Where("patron_id = ?", patronID).
		Order("created_at DESC").
		Find(&chats).Error
	return chats, err
}

func (s *GormStore) ListUnassigned(ctx context.Context) ([]domain.Chat, error) {
	var chats []domain.Chat
	err := s.db.WithContext(ctx).
		Where("status = ?", domain.StatusWaiting).
		Order("created_at ASC").
		Find(&chats).Error
	return chats, err
}

func (s *GormStore) ListAssignedTo(ctx context.Context, librarianID string) ([]domain.Chat, error) {
	var chats []domain.Chat
	err := s.db.WithContext(ctx).
		Where("librarian_id = ?", librarianID).
		Order("created_at DESC").
		Find(&chats).Error
	return chats, err
}

// Assign binds a librarian to a waiting chat. The transition is a single
// conditional UPDATE, so two racing claims cannot both succeed: the
// loser observes zero affected rows and gets ErrAlreadyAssigned.
func (s *GormStore) Assign(ctx context.Context, chatID, librarianID string) (*domain.Chat, error) {
	res := s.db.WithContext(ctx).Model(&domain.Chat{}).
		Where("id = ? AND status = ?", chatID, domain.StatusWaiting).
		Updates(map[string]interface{}{
			"status":       domain.StatusActive,
			"librarian_id": librarianID,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetChat(ctx, chatID); err != nil {
			return nil, err
		}
		return nil, domain.ErrAlreadyAssigned
	}
	return s.GetChat(ctx, chatID)
}

// Close transitions an active chat to closed. Closing a waiting or
// already closed chat fails with ErrNotActive.
func (s *GormStore) Close(ctx context.Context, chatID string) (*domain.Chat, error) {
	res := s.db.WithContext(ctx).Model(&domain.Chat{}).
		Where("id = ? AND status = ?", chatID, domain.StatusActive).
		Update("status", domain.StatusClosed)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetChat(ctx, chatID); err != nil {
			return nil, err
		}
		return nil, domain.ErrNotActive
	}
	return s.GetChat(ctx, chatID)
}

// AppendMessage persists one message with the next per-chat sequence
// number. The status check and the insert run in one transaction (with
// a row lock on postgres), so a close that wins the race rejects the
// append entirely.
func (s *GormStore) AppendMessage(ctx context.Context, chatID string, sender domain.Identity, content string) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrEmptyContent
	}

	var msg *domain.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var chat domain.Chat
		if err := q.First(&chat, "id = ?", chatID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrChatNotFound
			}
			return err
		}
		if chat.Status == domain.StatusClosed {
			return domain.ErrChatClosed
		}

		var next int64
		err := tx.Model(&domain.Message{}).
			Where("chat_id = ?", chatID).
			Select("COALESCE(MAX(seq), 0) + 1").
			Scan(&next).Error
		if err != nil {
			return err
		}

		msg = &domain.Message{
			ChatID:     chatID,
			Seq:        next,
			SenderID:   sender.UserID,
			SenderName: sender.Name,
			SenderRole: sender.Role,
			Content:    content,
			CreatedAt:  time.Now().UTC(),
		}
		return tx.Create(msg).Error
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *GormStore) ListMessages(ctx context.Context, chatID string) ([]domain.Message, error) {
	var msgs []domain.Message
	err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("seq ASC").
		Find(&msgs).Error
	return msgs, err
}
