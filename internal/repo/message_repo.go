// Messages are the care-team chat of one child.

package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parentrak/parentrak-backend/internal/domain"
)

// CreateMessage inserts a new message row in a child's room.
func CreateMessage(ctx context.Context, db *gorm.DB, childID, userID, authorName, content, clientRef string) (*domain.Message, error) {
	m := &domain.Message{
		ID:         uuid.NewString(),
		ChildID:    childID,
		UserID:     userID,
		AuthorName: authorName,
		Content:    content,
		ClientRef:  clientRef,
		CreatedAt:  time.Now().UTC(),
	}
	return m, db.WithContext(ctx).Create(m).Error
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, childID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw("SELECT COUNT(*) FROM messages WHERE child_id = ?", childID).Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice ordered (CreatedAt ASC, ID ASC).
func ListMessagesPage(ctx context.Context, db *gorm.DB, childID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("child_id = ?", childID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}
