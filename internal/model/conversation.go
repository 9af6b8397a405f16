package model

import "time"

// Conversation 代表一条落库的对话记录，内容已混淆编码。
// (user_id, room) 是逻辑分区键：按 created_at 升序读取并过滤掉
// 系统指令后，恰好还原该房间曾经展示过的消息序列。只追加，不修改。
type Conversation struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"index:idx_user_room;size:64;not null" json:"userId"`
	ChatID    string    `gorm:"size:64" json:"chatId"`
	Room      string    `gorm:"index:idx_user_room;size:32;not null" json:"room"`
	Role      string    `gorm:"size:16;not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Conversation) TableName() string {
	return "conversations"
}
