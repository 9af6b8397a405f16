package repository

import (
	"context"
	"fmt"
	"time"

	"golge-go/internal/model"
	"golge-go/pkg/log"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 已完成房间集合在 Redis 中的缓存有效期。
const completedCacheTTL = 24 * time.Hour

// ProgressRepository 定义了房间完成进度的持久化操作接口。
type ProgressRepository interface {
	// Upsert 写入一条完成记录；同一 (user, room) 重复写入是空操作。
	Upsert(ctx context.Context, record *model.ProgressRecord) error
	// CompletedRooms 返回用户已完成的房间集合。
	CompletedRooms(ctx context.Context, userID string) ([]model.RoomType, error)
	// DeleteByUser 删除用户的全部进度记录（重置流程）。
	DeleteByUser(ctx context.Context, userID string) error
}

type progressRepository struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewProgressRepository 创建一个新的 ProgressRepository 实例。
// rdb 可以为 nil，此时跳过缓存直接查库。
func NewProgressRepository(db *gorm.DB, rdb *redis.Client) ProgressRepository {
	return &progressRepository{db: db, rdb: rdb}
}

func completedCacheKey(userID string) string {
	return fmt.Sprintf("golge:user:%s:completed_rooms", userID)
}

// Upsert 插入完成记录，冲突时不做任何修改，并同步刷新缓存。
func (r *progressRepository) Upsert(ctx context.Context, record *model.ProgressRecord) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "room_id"}},
			DoNothing: true,
		}).
		Create(record).Error
	if err != nil {
		return fmt.Errorf("failed to upsert progress record: %w", err)
	}

	if r.rdb != nil {
		key := completedCacheKey(record.UserID)
		if err := r.rdb.SAdd(ctx, key, record.RoomID).Err(); err != nil {
			// 缓存失败不影响落库结果，下一次未命中会重建
			log.Warnf("failed to update completed rooms cache: %v", err)
		} else {
			r.rdb.Expire(ctx, key, completedCacheTTL)
		}
	}
	return nil
}

// CompletedRooms 优先读 Redis 集合缓存，未命中时回源 MySQL 并回填。
func (r *progressRepository) CompletedRooms(ctx context.Context, userID string) ([]model.RoomType, error) {
	if r.rdb != nil {
		members, err := r.rdb.SMembers(ctx, completedCacheKey(userID)).Result()
		if err == nil && len(members) > 0 {
			rooms := make([]model.RoomType, 0, len(members))
			for _, m := range members {
				rooms = append(rooms, model.RoomType(m))
			}
			return rooms, nil
		}
		if err != nil && err != redis.Nil {
			log.Warnf("failed to read completed rooms cache: %v", err)
		}
	}

	var records []model.ProgressRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load progress records: %w", err)
	}

	rooms := make([]model.RoomType, 0, len(records))
	for _, rec := range records {
		rooms = append(rooms, model.RoomType(rec.RoomID))
	}

	if r.rdb != nil && len(rooms) > 0 {
		key := completedCacheKey(userID)
		ids := make([]interface{}, len(rooms))
		for i, room := range rooms {
			ids[i] = string(room)
		}
		if err := r.rdb.SAdd(ctx, key, ids...).Err(); err == nil {
			r.rdb.Expire(ctx, key, completedCacheTTL)
		}
	}
	return rooms, nil
}

// DeleteByUser 删除进度记录并使缓存失效。
func (r *progressRepository) DeleteByUser(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.ProgressRecord{}).Error; err != nil {
		return fmt.Errorf("failed to delete progress records: %w", err)
	}
	if r.rdb != nil {
		if err := r.rdb.Del(ctx, completedCacheKey(userID)).Err(); err != nil {
			log.Warnf("failed to invalidate completed rooms cache: %v", err)
		}
	}
	return nil
}
