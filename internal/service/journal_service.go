package service

import (
	"context"
	"fmt"

	"golge-go/internal/model"
	"golge-go/internal/repository"
)

// RoomStatus 是房间目录里单个房间对某个用户的视图。
type RoomStatus struct {
	model.Room
	Locked    bool `json:"locked"`
	Completed bool `json:"completed"`
}

// JournalService 提供聊天会话之外的只读/维护操作：
// 日记视图、房间目录、进度查询和破坏性的全量重置。
type JournalService interface {
	// History 返回用户的可见历史；room 为空串时跨房间返回。
	History(ctx context.Context, userID, room string) ([]model.Conversation, error)
	// Rooms 返回房间目录及每个房间对该用户的锁定/完成状态。
	Rooms(ctx context.Context, userID string) ([]RoomStatus, error)
	// Progress 返回已完成房间集合与 simya 的解锁状态。
	Progress(ctx context.Context, userID string) ([]model.RoomType, bool, error)
	// Reset 删除用户的全部对话与进度记录。不可逆。
	Reset(ctx context.Context, userID string) error
}

type journalService struct {
	history  repository.HistoryRepository
	progress repository.ProgressRepository
}

// NewJournalService 创建一个新的 JournalService。
func NewJournalService(history repository.HistoryRepository, progress repository.ProgressRepository) JournalService {
	return &journalService{history: history, progress: progress}
}

// History 返回解码且过滤过系统指令的历史记录。
func (s *journalService) History(ctx context.Context, userID, room string) ([]model.Conversation, error) {
	rows, err := s.history.FetchAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	if room == "" {
		return rows, nil
	}
	filtered := make([]model.Conversation, 0, len(rows))
	for _, row := range rows {
		if row.Room == room {
			filtered = append(filtered, row)
		}
	}
	return filtered, nil
}

// Rooms 组合静态目录与用户的进度，得到带锁定标记的房间列表。
func (s *journalService) Rooms(ctx context.Context, userID string) ([]RoomStatus, error) {
	completed, err := s.progress.CompletedRooms(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load completed rooms: %w", err)
	}
	completedSet := make(map[model.RoomType]bool, len(completed))
	for _, room := range completed {
		completedSet[room] = true
	}

	statuses := make([]RoomStatus, 0, len(model.Rooms))
	for _, room := range model.Rooms {
		statuses = append(statuses, RoomStatus{
			Room:      room,
			Locked:    !model.IsUnlocked(room.ID, completed),
			Completed: completedSet[room.ID],
		})
	}
	return statuses, nil
}

// Progress 返回已完成房间与 simya 解锁状态。
func (s *journalService) Progress(ctx context.Context, userID string) ([]model.RoomType, bool, error) {
	completed, err := s.progress.CompletedRooms(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return completed, model.IsUnlocked(model.RoomSimya, completed), nil
}

// Reset 级联删除用户的对话与进度。调用方负责确认交互。
func (s *journalService) Reset(ctx context.Context, userID string) error {
	if err := s.history.DeleteByUser(ctx, userID); err != nil {
		return err
	}
	return s.progress.DeleteByUser(ctx, userID)
}
