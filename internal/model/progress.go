package model

import "time"

// ProgressRecord 代表"用户至少完成过一次该房间的任务"。
// (user_id, room_id) 唯一，重复插入是空操作。Completed 与 TaskStatus
// 显式存储完成状态，避免从消息序列的相邻关系反推。
type ProgressRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     string    `gorm:"uniqueIndex:idx_user_room_id;size:64;not null" json:"userId"`
	RoomID     string    `gorm:"uniqueIndex:idx_user_room_id;size:32;not null" json:"roomId"`
	Completed  bool      `gorm:"not null;default:true" json:"completed"`
	TaskStatus string    `gorm:"type:text" json:"taskStatus"` // JSON 编码的 [bool]，逐任务完成标记
	Summary    string    `gorm:"type:text" json:"summary"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (ProgressRecord) TableName() string {
	return "progress_records"
}
