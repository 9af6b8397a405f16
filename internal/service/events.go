// Package service 包含了应用的业务逻辑层。
package service

import "golge-go/internal/model"

// RoomState 是单个房间在一次访问生命周期中的编排状态。
type RoomState string

const (
	StateIdle      RoomState = "idle"
	StateLoading   RoomState = "loading"
	StateDelivered RoomState = "delivered"
	// StateStale 表示响应到达时用户已离开该房间。
	StateStale   RoomState = "stale"
	StateErrored RoomState = "errored"
)

// 事件类型。会话把状态变化以事件流的形式推送给视图层。
const (
	EventTranscript = "transcript" // 整个房间的可见消息序列（切换房间后下发）
	EventMessage    = "message"    // 追加单条消息
	EventState      = "state"      // 房间的加载/初始化状态
	EventProgress   = "progress"   // 已完成房间集合
	EventUnlock     = "unlock"     // simya 解锁庆祝，至多触发一次
	EventLocked     = "locked"     // 尝试进入未解锁的房间
	EventError      = "error"      // 非对话通道的错误提示
)

// Event 是推送给视图层的单个事件。
type Event struct {
	Type           string              `json:"type"`
	Room           model.RoomType      `json:"room,omitempty"`
	Message        *model.Message      `json:"message,omitempty"`
	Messages       []model.Message     `json:"messages,omitempty"`
	Report         *model.ShadowReport `json:"report,omitempty"`
	IsLoading      bool                `json:"isLoading,omitempty"`
	IsInitializing bool                `json:"isInitializing,omitempty"`
	CompletedRooms []model.RoomType    `json:"completedRooms,omitempty"`
	Error          string              `json:"error,omitempty"`
}
