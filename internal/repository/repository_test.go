package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"golge-go/internal/model"
)

// newTestDB 返回一个独立的内存 SQLite 库，生命周期随单个测试结束。
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Conversation{}, &model.ProgressRecord{}))
	return db
}

func seedConversation(t *testing.T, repo HistoryRepository, userID string, room model.RoomType, sender model.Sender, content string) {
	t.Helper()
	require.NoError(t, repo.AppendRecord(context.Background(), userID, room, sender, content))
}
