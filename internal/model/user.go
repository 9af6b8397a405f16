package model

import (
	"strconv"
	"time"
)

// DefaultGender 是用户未填写性别时发送给 AI 后端的回退值。
const DefaultGender = "belirtilmedi"

// User 代表一个注册用户。核心逻辑只把它当作 (id, gender) 的值来源。
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex;size:64;not null" json:"username"`
	Password  string    `gorm:"size:128;not null" json:"-"`
	Gender    string    `gorm:"size:16" json:"gender"`
	Role      string    `gorm:"size:16;default:user" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (User) TableName() string {
	return "users"
}

// SessionID 返回该用户在 AI 后端的会话键。
// 每个用户只有一条连续的 AI 记忆线程，房间通过请求里的 room 字段区分。
func (u *User) SessionID() string {
	return strconv.FormatUint(uint64(u.ID), 10)
}

// GenderOrDefault 返回性别属性，空值回退到 DefaultGender。
func (u *User) GenderOrDefault() string {
	if u.Gender == "" {
		return DefaultGender
	}
	return u.Gender
}
