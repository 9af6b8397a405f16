// Package model 包含了应用的数据模型定义。
package model

// RoomType 是房间的固定标识符。
type RoomType string

const (
	RoomYuzlesme  RoomType = "yuzlesme"  // 默认房间，开场用 /start 触发
	RoomKokler    RoomType = "kokler"    // 反思型房间，开场走倾听式引导
	RoomPara      RoomType = "para"
	RoomIliskiler RoomType = "iliskiler"
	RoomSimya     RoomType = "simya" // 终局房间，需要先完成其他房间解锁
)

// Room 描述一个房间的静态信息。
type Room struct {
	ID   RoomType `json:"id"`
	Name string   `json:"name"`
	Icon string   `json:"icon"`
}

// Rooms 是编译期固定的房间目录，顺序即侧边栏展示顺序。
var Rooms = []Room{
	{ID: RoomYuzlesme, Name: "Yüzleşme", Icon: "🔥"},
	{ID: RoomKokler, Name: "Kökler", Icon: "🌳"},
	{ID: RoomPara, Name: "Para", Icon: "💰"},
	{ID: RoomIliskiler, Name: "İlişkiler", Icon: "💔"},
	{ID: RoomSimya, Name: "Simya", Icon: "⚗️"},
}

// UnlockThreshold 是解锁 simya 所需的已完成房间数量。
// 这是一个全局计数阈值，不要求完成特定的某两个房间。
const UnlockThreshold = 2

// RoomByID 按标识符查找房间，未知标识符返回 false。
func RoomByID(id RoomType) (Room, bool) {
	for _, r := range Rooms {
		if r.ID == id {
			return r, true
		}
	}
	return Room{}, false
}

// IsUnlocked 判断房间对给定的已完成集合是否可进入。
// 除 simya 外的所有房间始终解锁；simya 要求至少 UnlockThreshold
// 个不同的其他房间已完成（simya 自身不计入）。
func IsUnlocked(id RoomType, completed []RoomType) bool {
	if id != RoomSimya {
		return true
	}
	count := 0
	for _, c := range completed {
		if c != RoomSimya {
			count++
		}
	}
	return count >= UnlockThreshold
}
