package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golge-go/internal/model"
	"golge-go/pkg/webhook"

	"gorm.io/gorm"
)

// stubCall 是 stubWebhook 捕获的一次请求，由测试方决定何时以何种
// 结果完成，用来精确控制响应与房间切换的交织顺序。
type stubCall struct {
	req  webhook.Request
	done chan stubResult
}

type stubResult struct {
	content string
	err     error
}

func (c *stubCall) resolve(content string) {
	c.done <- stubResult{content: content}
}

func (c *stubCall) fail(err error) {
	c.done <- stubResult{err: err}
}

type stubWebhook struct {
	calls chan *stubCall
}

func newStubWebhook() *stubWebhook {
	return &stubWebhook{calls: make(chan *stubCall, 16)}
}

func (s *stubWebhook) Send(ctx context.Context, req webhook.Request) (string, error) {
	call := &stubCall{req: req, done: make(chan stubResult, 1)}
	s.calls <- call
	select {
	case res := <-call.done:
		return res.content, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *stubWebhook) Timeout() time.Duration {
	return 2 * time.Second
}

// next 返回下一次捕获的请求，超时说明没有派发发生。
func (s *stubWebhook) next(timeout time.Duration) (*stubCall, bool) {
	select {
	case call := <-s.calls:
		return call, true
	case <-time.After(timeout):
		return nil, false
	}
}

type historyRow struct {
	userID    string
	room      model.RoomType
	role      string
	content   string
	createdAt time.Time
}

// memoryHistory 是 HistoryRepository 的进程内实现，存明文。
type memoryHistory struct {
	mu        sync.Mutex
	rows      []historyRow
	failFetch bool
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{}
}

func (m *memoryHistory) seed(userID string, room model.RoomType, role, content string) {
	m.seedAt(userID, room, role, content, time.Now())
}

func (m *memoryHistory) seedAt(userID string, room model.RoomType, role, content string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, historyRow{userID: userID, room: room, role: role, content: content, createdAt: at})
}

func (m *memoryHistory) FetchRoomHistory(_ context.Context, userID string, room model.RoomType) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFetch {
		return nil, fmt.Errorf("store unavailable")
	}
	var messages []model.Message
	for i, row := range m.rows {
		if row.userID != userID || row.room != room {
			continue
		}
		if model.IsSystemDirective(row.content) {
			continue
		}
		messages = append(messages, model.Message{
			ID:      fmt.Sprintf("%d", i),
			Content: row.content,
			Sender:  model.SenderFromRole(row.role),
		})
	}
	return messages, nil
}

func (m *memoryHistory) AppendRecord(_ context.Context, userID string, room model.RoomType, sender model.Sender, plaintext string) error {
	m.seed(userID, room, model.RoleFromSender(sender), plaintext)
	return nil
}

func (m *memoryHistory) FetchAll(_ context.Context, userID string) ([]model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Conversation
	for _, row := range m.rows {
		if row.userID != userID || model.IsSystemDirective(row.content) {
			continue
		}
		out = append(out, model.Conversation{UserID: row.userID, Room: string(row.room), Role: row.role, Content: row.content})
	}
	return out, nil
}

func (m *memoryHistory) DeleteByUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	for _, row := range m.rows {
		if row.userID != userID {
			kept = append(kept, row)
		}
	}
	m.rows = kept
	return nil
}

func (m *memoryHistory) CountAll(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.rows)), nil
}

func (m *memoryHistory) CountSince(_ context.Context, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, row := range m.rows {
		if !row.createdAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// roomContents 返回某房间落库的全部明文（含指令），按插入顺序。
func (m *memoryHistory) roomContents(userID string, room model.RoomType) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, row := range m.rows {
		if row.userID == userID && row.room == room {
			out = append(out, row.content)
		}
	}
	return out
}

// memoryProgress 是 ProgressRepository 的进程内实现。
type memoryProgress struct {
	mu      sync.Mutex
	records map[string]map[string]*model.ProgressRecord
}

func newMemoryProgress() *memoryProgress {
	return &memoryProgress{records: make(map[string]map[string]*model.ProgressRecord)}
}

func (m *memoryProgress) Upsert(_ context.Context, record *model.ProgressRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byRoom, ok := m.records[record.UserID]
	if !ok {
		byRoom = make(map[string]*model.ProgressRecord)
		m.records[record.UserID] = byRoom
	}
	if _, exists := byRoom[record.RoomID]; exists {
		return nil // 与数据库的 DoNothing 冲突语义一致
	}
	byRoom[record.RoomID] = record
	return nil
}

func (m *memoryProgress) CompletedRooms(_ context.Context, userID string) ([]model.RoomType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rooms []model.RoomType
	for roomID := range m.records[userID] {
		rooms = append(rooms, model.RoomType(roomID))
	}
	return rooms, nil
}

func (m *memoryProgress) DeleteByUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, userID)
	return nil
}

func (m *memoryProgress) complete(userID string, rooms ...model.RoomType) {
	for _, room := range rooms {
		_ = m.Upsert(context.Background(), &model.ProgressRecord{UserID: userID, RoomID: string(room), Completed: true})
	}
}

// memoryUsers 是 UserRepository 的进程内实现，只支持统计用到的操作。
type memoryUsers struct {
	mu    sync.Mutex
	users []*model.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{}
}

func (m *memoryUsers) Create(user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.ID = uint(len(m.users) + 1)
	m.users = append(m.users, user)
	return nil
}

func (m *memoryUsers) FindByUsername(username string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryUsers) FindByID(userID uint) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == userID {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryUsers) Update(user *model.User) error {
	return nil
}

func (m *memoryUsers) Count() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.users)), nil
}

// newTestSession 组装一个带进程内依赖的会话。
func newTestSession(hiddenGrace time.Duration) (*ChatSession, *stubWebhook, *memoryHistory, *memoryProgress) {
	wh := newStubWebhook()
	history := newMemoryHistory()
	progress := newMemoryProgress()
	user := &model.User{ID: 7, Username: "deniz", Gender: "kadın"}
	orch := NewOrchestrator(wh, history)
	tracker := NewProgressTracker(progress, user.SessionID())
	session := NewChatSession(user, orch, history, tracker, hiddenGrace)
	return session, wh, history, progress
}

// drainEvents 丢弃当前已排队的事件，便于断言后续事件。
func drainEvents(s *ChatSession) {
	for {
		select {
		case <-s.Events():
		default:
			return
		}
	}
}

// waitTranscriptLen 轮询等待某房间的可见消息序列达到期望长度。
func waitTranscriptLen(s *ChatSession, room model.RoomType, want int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(s.Transcript(room)) == want {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return len(s.Transcript(room)) == want
}
