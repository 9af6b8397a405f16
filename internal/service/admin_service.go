package service

import (
	"context"
	"fmt"
	"time"

	"golge-go/internal/repository"
)

// DashboardStats 是管理端仪表盘的统计数据。
type DashboardStats struct {
	TotalUsers    int64 `json:"totalUsers"`
	TotalMessages int64 `json:"totalMessages"`
	MessagesToday int64 `json:"messagesToday"`
}

// AdminService 接口定义了管理员相关的业务操作。
type AdminService interface {
	// Stats 返回系统概况：注册用户数、对话记录总数、今日消息数。
	Stats(ctx context.Context) (*DashboardStats, error)
}

// adminService 是 AdminService 接口的实现。
// 统计直接走数据库 count，不把全量记录拉到内存里数。
type adminService struct {
	userRepo    repository.UserRepository
	historyRepo repository.HistoryRepository
}

// NewAdminService 创建一个新的 AdminService 实例。
func NewAdminService(userRepo repository.UserRepository, historyRepo repository.HistoryRepository) AdminService {
	return &adminService{
		userRepo:    userRepo,
		historyRepo: historyRepo,
	}
}

// Stats 汇总仪表盘统计。"今日"以服务器本地时区的零点为界。
func (s *adminService) Stats(ctx context.Context) (*DashboardStats, error) {
	totalUsers, err := s.userRepo.Count()
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	totalMessages, err := s.historyRepo.CountAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}

	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	messagesToday, err := s.historyRepo.CountSince(ctx, midnight)
	if err != nil {
		return nil, fmt.Errorf("failed to count today's messages: %w", err)
	}

	return &DashboardStats{
		TotalUsers:    totalUsers,
		TotalMessages: totalMessages,
		MessagesToday: messagesToday,
	}, nil
}
