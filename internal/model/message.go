package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sender 标识消息在界面上的归属方。
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// 持久化记录里使用的角色，user 以外的角色一律映射为 SenderAI。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 是界面可见的单条消息，创建后不可变。
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    Sender    `json:"sender"`
	Timestamp LocalTime `json:"timestamp"`
}

// NewMessage 创建一条带随机 ID 和当前时间戳的消息。
func NewMessage(content string, sender Sender) Message {
	return Message{
		ID:        uuid.NewString(),
		Content:   content,
		Sender:    sender,
		Timestamp: LocalTime(time.Now()),
	}
}

// StartTrigger 是默认房间的开场触发指令。
const StartTrigger = "/start"

// 系统指令前缀。指令会发送给 AI 后端并落库，但绝不能渲染给用户。
var directivePrefixes = []string{"[SISTEM", "[GİZLİ TALİMAT"}

// IsSystemDirective 判断一段明文内容是否为系统指令。
// 历史记录渲染与日记视图都依赖这个过滤。
func IsSystemDirective(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == StartTrigger {
		return true
	}
	for _, p := range directivePrefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}

// SenderFromRole 把持久化的角色映射为界面归属方。
func SenderFromRole(role string) Sender {
	if role == RoleUser {
		return SenderUser
	}
	return SenderAI
}

// RoleFromSender 是 SenderFromRole 的逆映射，用于写库。
func RoleFromSender(sender Sender) string {
	if sender == SenderUser {
		return RoleUser
	}
	return RoleAssistant
}
