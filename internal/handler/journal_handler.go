package handler

import (
	"net/http"

	"golge-go/internal/model"
	"golge-go/internal/service"

	"github.com/gin-gonic/gin"
)

// JournalHandler 处理聊天会话之外的历史、房间目录与进度请求。
type JournalHandler struct {
	journalService service.JournalService
}

// NewJournalHandler 创建一个新的 JournalHandler。
func NewJournalHandler(journalService service.JournalService) *JournalHandler {
	return &JournalHandler{journalService: journalService}
}

// GetHistory 返回用户的可见历史记录（日记视图）。
// 可选的 room 查询参数用于限定单个房间。
func (h *JournalHandler) GetHistory(c *gin.Context) {
	user := c.MustGet("user").(*model.User)
	room := c.Query("room")

	history, err := h.journalService.History(c.Request.Context(), user.SessionID(), room)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取对话历史", "data": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": history})
}

// ResetHistory 删除用户的全部对话与进度记录。
// 破坏性操作：前端在调用前必须经过阻断式确认。
func (h *JournalHandler) ResetHistory(c *gin.Context) {
	user := c.MustGet("user").(*model.User)

	if err := h.journalService.Reset(c.Request.Context(), user.SessionID()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "重置失败", "data": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": nil})
}

// GetRooms 返回房间目录及每个房间对当前用户的锁定/完成状态。
func (h *JournalHandler) GetRooms(c *gin.Context) {
	user := c.MustGet("user").(*model.User)

	rooms, err := h.journalService.Rooms(c.Request.Context(), user.SessionID())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取房间目录", "data": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": rooms})
}

// GetProgress 返回已完成房间集合与 simya 的解锁状态。
func (h *JournalHandler) GetProgress(c *gin.Context) {
	user := c.MustGet("user").(*model.User)

	completed, simyaUnlocked, err := h.journalService.Progress(c.Request.Context(), user.SessionID())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取进度", "data": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"completedRooms": completed,
			"simyaUnlocked":  simyaUnlocked,
		},
	})
}
