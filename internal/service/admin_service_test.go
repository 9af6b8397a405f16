package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golge-go/internal/model"
)

func TestAdminStats(t *testing.T) {
	users := newMemoryUsers()
	require.NoError(t, users.Create(&model.User{Username: "deniz", Role: "user"}))
	require.NoError(t, users.Create(&model.User{Username: "yonetici", Role: "admin"}))

	history := newMemoryHistory()
	yesterday := time.Now().Add(-24 * time.Hour)
	history.seedAt("1", model.RoomYuzlesme, model.RoleUser, "dünden kalan", yesterday)
	history.seed("1", model.RoomYuzlesme, model.RoleAssistant, "bugünkü yanıt")
	history.seed("2", model.RoomPara, model.RoleUser, "bugünkü mesaj")

	stats, err := NewAdminService(users, history).Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalUsers)
	assert.Equal(t, int64(3), stats.TotalMessages)
	assert.Equal(t, int64(2), stats.MessagesToday)
}

func TestAdminStatsEmptySystem(t *testing.T) {
	stats, err := NewAdminService(newMemoryUsers(), newMemoryHistory()).Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalUsers)
	assert.Equal(t, int64(0), stats.TotalMessages)
	assert.Equal(t, int64(0), stats.MessagesToday)
}
