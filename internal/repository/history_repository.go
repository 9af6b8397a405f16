// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"fmt"
	"time"

	"golge-go/internal/model"
	"golge-go/pkg/crypt"

	"gorm.io/gorm"
)

// HistoryRepository 定义了按 (用户, 房间) 维度的对话历史操作接口。
type HistoryRepository interface {
	// FetchRoomHistory 按 created_at 升序返回某房间的可见消息序列。
	// 内容已解码，系统指令已被过滤。返回 error 表示取数失败，
	// 调用方必须据此区分"真空房间"和"取数失败"。
	FetchRoomHistory(ctx context.Context, userID string, room model.RoomType) ([]model.Message, error)
	// AppendRecord 编码明文并追加一条记录。
	AppendRecord(ctx context.Context, userID string, room model.RoomType, sender model.Sender, plaintext string) error
	// FetchAll 返回用户所有房间的可见消息（日记视图），指令同样被过滤。
	FetchAll(ctx context.Context, userID string) ([]model.Conversation, error)
	// DeleteByUser 删除用户的全部对话记录（重置/注销流程）。
	DeleteByUser(ctx context.Context, userID string) error
	// CountAll 返回全库对话记录总数（管理端统计）。
	CountAll(ctx context.Context) (int64, error)
	// CountSince 返回 since 之后创建的对话记录数。
	CountSince(ctx context.Context, since time.Time) (int64, error)
}

type historyRepository struct {
	db *gorm.DB
}

// NewHistoryRepository 创建一个新的 HistoryRepository 实例。
func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepository{db: db}
}

// FetchRoomHistory 查询、解码并过滤某房间的历史记录。
func (r *historyRepository) FetchRoomHistory(ctx context.Context, userID string, room model.RoomType) ([]model.Message, error) {
	var rows []model.Conversation
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND room = ?", userID, string(room)).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch room history: %w", err)
	}

	messages := make([]model.Message, 0, len(rows))
	for _, row := range rows {
		content := crypt.Decode(row.Content)
		if model.IsSystemDirective(content) {
			continue
		}
		messages = append(messages, model.Message{
			ID:        fmt.Sprintf("%d", row.ID),
			Content:   content,
			Sender:    model.SenderFromRole(row.Role),
			Timestamp: model.LocalTime(row.CreatedAt),
		})
	}
	return messages, nil
}

// AppendRecord 编码明文并插入一条对话记录。
func (r *historyRepository) AppendRecord(ctx context.Context, userID string, room model.RoomType, sender model.Sender, plaintext string) error {
	record := model.Conversation{
		UserID:  userID,
		ChatID:  userID,
		Room:    string(room),
		Role:    model.RoleFromSender(sender),
		Content: crypt.Encode(plaintext),
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to append conversation record: %w", err)
	}
	return nil
}

// FetchAll 返回用户所有房间的对话记录，内容已解码、指令已过滤。
func (r *historyRepository) FetchAll(ctx context.Context, userID string) ([]model.Conversation, error) {
	var rows []model.Conversation
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user history: %w", err)
	}

	visible := make([]model.Conversation, 0, len(rows))
	for _, row := range rows {
		content := crypt.Decode(row.Content)
		if model.IsSystemDirective(content) {
			continue
		}
		row.Content = content
		visible = append(visible, row)
	}
	return visible, nil
}

// DeleteByUser 按用户批量删除对话记录。
func (r *historyRepository) DeleteByUser(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.Conversation{}).Error; err != nil {
		return fmt.Errorf("failed to delete conversation records: %w", err)
	}
	return nil
}

// CountAll 统计全库对话记录总数。统计口径包含系统指令记录。
func (r *historyRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Conversation{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count conversation records: %w", err)
	}
	return count, nil
}

// CountSince 统计 since 之后创建的对话记录数。
func (r *historyRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("created_at >= ?", since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count recent conversation records: %w", err)
	}
	return count, nil
}
