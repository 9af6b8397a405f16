package service

import (
	"context"
	"sync"

	"golge-go/internal/model"
	"golge-go/internal/repository"
)

// 哨兵值："尚未观测过"。必须与 0 区分：页面加载后的第一次观测
// 要静默采纳当前计数，否则每次刷新都会对已解锁状态重新庆祝。
const countNotObserved = -1

// ProgressTracker 维护单个会话内的进度观测状态，并在已完成房间
// 数越过解锁阈值的瞬间恰好触发一次解锁事件。
type ProgressTracker struct {
	repo   repository.ProgressRepository
	userID string

	mu        sync.Mutex
	prevCount int
}

// NewProgressTracker 创建一个进度跟踪器，prevCount 从哨兵值开始。
func NewProgressTracker(repo repository.ProgressRepository, userID string) *ProgressTracker {
	return &ProgressTracker{
		repo:      repo,
		userID:    userID,
		prevCount: countNotObserved,
	}
}

// Record 写入一条完成记录（幂等）。
func (t *ProgressTracker) Record(ctx context.Context, record *model.ProgressRecord) error {
	return t.repo.Upsert(ctx, record)
}

// Refresh 重新加载已完成房间集合。第二个返回值表示本次刷新
// 恰好跨过了解锁阈值（prev < 阈值 <= new），整个会话期间至多
// 为 true 一次；首次观测（哨兵状态）永远不触发。
func (t *ProgressTracker) Refresh(ctx context.Context) ([]model.RoomType, bool, error) {
	rooms, err := t.repo.CompletedRooms(ctx, t.userID)
	if err != nil {
		return nil, false, err
	}

	// simya 自身不计入解锁所需的完成数
	count := 0
	for _, room := range rooms {
		if room != model.RoomSimya {
			count++
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	justUnlocked := t.prevCount != countNotObserved &&
		t.prevCount < model.UnlockThreshold &&
		count >= model.UnlockThreshold
	t.prevCount = count

	return rooms, justUnlocked, nil
}
