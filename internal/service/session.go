package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golge-go/internal/model"
	"golge-go/internal/repository"
	"golge-go/pkg/log"
)

// 对话模式。shadow 是默认的对峙式基调，safe 是温和基调。
const (
	ModeShadow = "shadow"
	ModeSafe   = "safe"
)

// ErrRoomLocked 表示用户尝试进入尚未解锁的房间。
var ErrRoomLocked = errors.New("room is locked")

// ErrUnknownRoom 表示房间标识符不在目录中。
var ErrUnknownRoom = errors.New("unknown room")

// 事件通道的缓冲大小。写满说明客户端长时间不读，直接丢弃并记日志。
const eventBufferSize = 64

// ChatSession 是绑定到单个连接的房间级会话控制器。
// 它持有视图侧的全部可变状态：当前房间、各房间的可见消息序列、
// 加载/初始化标记和"本次会话已自动开场过"的房间集合。
//
// viewedRoom 是唯一被界面和在途请求回调同时读取的共享状态：
// 请求发出时按值捕获目标房间，响应到达时在锁内重新读取
// viewedRoom——这一对约定是陈旧响应判定的根基。
type ChatSession struct {
	userID string
	gender string

	orch     *Orchestrator
	history  repository.HistoryRepository
	progress *ProgressTracker

	hiddenGrace time.Duration

	mu           sync.Mutex
	mode         string
	viewedRoom   model.RoomType
	transcripts  map[model.RoomType][]model.Message
	states       map[model.RoomType]RoomState
	pending      map[model.RoomType]int
	initializing map[model.RoomType]bool
	initialized  map[model.RoomType]bool
	epoch        map[model.RoomType]int
	hiddenAt     time.Time

	events chan Event
	done   chan struct{}
	once   sync.Once
}

// NewChatSession 创建一个新的会话。roomInit 状态全部为空：
// "哪些房间需要自动开场"在冷启动时由"该房间是否已有历史"推导，
// 不依赖任何跨进程持久化。
func NewChatSession(user *model.User, orch *Orchestrator, history repository.HistoryRepository, tracker *ProgressTracker, hiddenGrace time.Duration) *ChatSession {
	if hiddenGrace <= 0 {
		hiddenGrace = 10 * time.Second
	}
	return &ChatSession{
		userID:       user.SessionID(),
		gender:       user.GenderOrDefault(),
		orch:         orch,
		history:      history,
		progress:     tracker,
		hiddenGrace:  hiddenGrace,
		mode:         ModeShadow,
		transcripts:  make(map[model.RoomType][]model.Message),
		states:       make(map[model.RoomType]RoomState),
		pending:      make(map[model.RoomType]int),
		initializing: make(map[model.RoomType]bool),
		initialized:  make(map[model.RoomType]bool),
		epoch:        make(map[model.RoomType]int),
		events:       make(chan Event, eventBufferSize),
		done:         make(chan struct{}),
	}
}

// Events 返回推送给视图层的事件通道。
func (s *ChatSession) Events() <-chan Event {
	return s.events
}

// Done 在会话关闭后可读。
func (s *ChatSession) Done() <-chan struct{} {
	return s.done
}

// Close 结束会话。在途请求会自然完成，其可见副作用被丢弃。
func (s *ChatSession) Close() {
	s.once.Do(func() { close(s.done) })
}

// UserID 返回会话所属的用户标识。
func (s *ChatSession) UserID() string {
	return s.userID
}

// SwitchRoom 切换当前房间：做解锁校验，加载该房间的历史，
// 并在"历史确实为空且本次会话未开场过"时触发一次自动开场。
// 上一个房间的在途请求不会被中断，其响应由陈旧判定拦截。
func (s *ChatSession) SwitchRoom(ctx context.Context, roomID model.RoomType) error {
	room, ok := model.RoomByID(roomID)
	if !ok {
		return ErrUnknownRoom
	}

	completed, justUnlocked, err := s.progress.Refresh(ctx)
	if err != nil {
		// 进度读不到时保守处理：目录房间照常进，simya 保持锁定
		log.Warnf("failed to refresh progress for user %s: %v", s.userID, err)
		completed = nil
	}
	if justUnlocked {
		s.emit(Event{Type: EventUnlock})
	}
	if !model.IsUnlocked(roomID, completed) {
		s.emit(Event{Type: EventLocked, Room: roomID, CompletedRooms: completed})
		return ErrRoomLocked
	}

	s.mu.Lock()
	s.viewedRoom = roomID
	s.mu.Unlock()

	messages, fetchErr := s.history.FetchRoomHistory(ctx, s.userID, roomID)

	s.mu.Lock()
	if s.viewedRoom != roomID {
		// 加载期间用户又切走了，结果作废
		s.mu.Unlock()
		return nil
	}
	if fetchErr != nil {
		// 取数失败按空房间展示，但绝不触发自动开场：
		// 真实历史可能存在，重复开场比空白更糟
		log.Errorf("failed to load history for room %s: %v", roomID, fetchErr)
		s.transcripts[roomID] = nil
		s.emitLocked(Event{Type: EventTranscript, Room: roomID, Messages: []model.Message{}})
		s.emitStateLocked(roomID)
		s.mu.Unlock()
		return nil
	}

	s.transcripts[roomID] = messages
	s.emitLocked(Event{Type: EventTranscript, Room: roomID, Messages: messages})

	needInit := len(messages) == 0 && !s.initialized[roomID]
	if needInit {
		s.initialized[roomID] = true
	}
	s.emitStateLocked(roomID)
	s.mu.Unlock()

	if needInit {
		payload := introPayload(room)
		// 指令也落库（user 角色），读取时会被过滤掉
		if err := s.history.AppendRecord(ctx, s.userID, roomID, model.SenderUser, payload); err != nil {
			log.Warnf("failed to persist intro directive for room %s: %v", roomID, err)
		}
		s.orch.Dispatch(s, payload, roomID, true)
	}
	return nil
}

// SendMessage 立即乐观地把用户消息追加到可见消息序列（不等任何
// 网络往返），随后向发送时所在的房间派发 AI 请求。用户中途切换
// 房间不会改变这次请求的目标房间。
func (s *ChatSession) SendMessage(ctx context.Context, content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}

	s.mu.Lock()
	target := s.viewedRoom
	if target == "" {
		// 还没进过任何房间，没有可归属的目标房间
		s.mu.Unlock()
		return
	}
	userMsg := model.NewMessage(content, model.SenderUser)
	s.transcripts[target] = append(s.transcripts[target], userMsg)
	s.emitLocked(Event{Type: EventMessage, Room: target, Message: &userMsg})
	s.mu.Unlock()

	// 落库失败不阻塞界面，可见状态已经是乐观追加后的样子
	if err := s.history.AppendRecord(ctx, s.userID, target, model.SenderUser, content); err != nil {
		log.Warnf("failed to persist user message: %v", err)
	}

	s.orch.Dispatch(s, content, target, false)
}

// TaskResult 是报告中单个任务的完成情况。
type TaskResult struct {
	Description string `json:"description"`
	Done        bool   `json:"done"`
	Note        string `json:"note"`
}

// CompletedReport 是用户提交的任务完成报告。
type CompletedReport struct {
	Archetype string       `json:"archetype"`
	Tasks     []TaskResult `json:"tasks"`
}

// BuildTaskReport 把完成报告合成为一条人类可读的汇总消息。
func BuildTaskReport(report CompletedReport) string {
	var b strings.Builder
	b.WriteString("[GÖREV RAPORU]\n")
	if report.Archetype != "" {
		b.WriteString(fmt.Sprintf("Arketip: %s\n", report.Archetype))
	}
	for i, task := range report.Tasks {
		mark := "⬜"
		if task.Done {
			mark = "✅"
		}
		b.WriteString(fmt.Sprintf("%d. %s %s\n", i+1, mark, task.Description))
		if note := strings.TrimSpace(task.Note); note != "" {
			b.WriteString(fmt.Sprintf("   Not: %s\n", note))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// CompleteReport 处理结构化任务的完成提交：合成汇总消息并作为
// 用户消息追加、落库，写入进度记录（显式携带逐任务完成标记），
// 刷新进度并在越过阈值时触发一次解锁事件，最后向 AI 派发
// "从对峙转向整合"的系统指令。
func (s *ChatSession) CompleteReport(ctx context.Context, report CompletedReport) {
	s.mu.Lock()
	target := s.viewedRoom
	if target == "" {
		s.mu.Unlock()
		return
	}
	summary := BuildTaskReport(report)
	summaryMsg := model.NewMessage(summary, model.SenderUser)
	s.transcripts[target] = append(s.transcripts[target], summaryMsg)
	s.emitLocked(Event{Type: EventMessage, Room: target, Message: &summaryMsg})
	s.mu.Unlock()

	if err := s.history.AppendRecord(ctx, s.userID, target, model.SenderUser, summary); err != nil {
		log.Warnf("failed to persist task report: %v", err)
	}

	status := make([]bool, len(report.Tasks))
	for i, t := range report.Tasks {
		status[i] = t.Done
	}
	statusJSON, _ := json.Marshal(status)

	record := &model.ProgressRecord{
		UserID:     s.userID,
		RoomID:     string(target),
		Completed:  true,
		TaskStatus: string(statusJSON),
		Summary:    summary,
	}
	if err := s.progress.Record(ctx, record); err != nil {
		log.Errorf("failed to record room completion: %v", err)
	}

	completed, justUnlocked, err := s.progress.Refresh(ctx)
	if err != nil {
		log.Warnf("failed to refresh progress: %v", err)
	} else {
		s.emit(Event{Type: EventProgress, CompletedRooms: completed})
		if justUnlocked {
			s.emit(Event{Type: EventUnlock})
		}
	}

	directive := "[SISTEM: Kullanıcı bu odadaki yüzleşme görevlerini tamamladı ve raporunu paylaştı. " +
		"Yüzleşme tonunu bırak; bütünleştirme ve rehberlik moduna geç. " +
		"İlerlemeyi kısaca onayla ve bir sonraki adımı göster.]"
	if err := s.history.AppendRecord(ctx, s.userID, target, model.SenderUser, directive); err != nil {
		log.Warnf("failed to persist completion directive: %v", err)
	}
	s.orch.Dispatch(s, directive, target, false)
}

// SwitchMode 切换语气模式并向当前房间派发一条变更指令。
// 不改变房间，也不触碰历史。
func (s *ChatSession) SwitchMode(ctx context.Context, safe bool) {
	s.mu.Lock()
	if safe {
		s.mode = ModeSafe
	} else {
		s.mode = ModeShadow
	}
	target := s.viewedRoom
	s.mu.Unlock()

	// 模式先生效，指令等进入房间后的下一次派发自然携带
	if target == "" {
		return
	}

	var directive string
	if safe {
		directive = "[SISTEM: Kullanıcı güvenli moda geçti. Yüzleştirici tonu bırak; nazik, destekleyici bir dille devam et.]"
	} else {
		directive = "[SISTEM: Kullanıcı gölge moduna geri döndü. Doğrudan ve yüzleştirici tona geri dön.]"
	}
	if err := s.history.AppendRecord(ctx, s.userID, target, model.SenderUser, directive); err != nil {
		log.Warnf("failed to persist mode directive: %v", err)
	}
	s.orch.Dispatch(s, directive, target, false)
}

// SetVisibility 接收页面可见性信号。页面隐藏超过宽限期且当前
// 房间仍有未完成请求时，把该房间主动判为 Errored 并提示重发，
// 而不是让加载指示一直转下去。
func (s *ChatSession) SetVisibility(hidden bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hidden {
		s.hiddenAt = time.Now()
		return
	}

	hiddenFor := time.Duration(0)
	if !s.hiddenAt.IsZero() {
		hiddenFor = time.Since(s.hiddenAt)
	}
	s.hiddenAt = time.Time{}

	room := s.viewedRoom
	if hiddenFor <= s.hiddenGrace || s.pending[room] == 0 {
		return
	}

	// 作废该房间所有在途请求的可见副作用；迟到的响应仍会按
	// 目标房间落库，但不会再出现在屏幕上
	s.epoch[room]++
	s.pending[room] = 0
	s.initializing[room] = false
	s.states[room] = StateErrored

	stallMsg := model.NewMessage(stalledReply, model.SenderAI)
	s.transcripts[room] = append(s.transcripts[room], stallMsg)
	s.emitLocked(Event{Type: EventMessage, Room: room, Message: &stallMsg})
	s.emitStateLocked(room)
}

// Mode 返回当前语气模式。
func (s *ChatSession) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// ViewedRoom 返回当前房间。
func (s *ChatSession) ViewedRoom() model.RoomType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewedRoom
}

// Transcript 返回某房间当前的可见消息序列副本（测试与诊断用）。
func (s *ChatSession) Transcript(room model.RoomType) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.transcripts[room]))
	copy(out, s.transcripts[room])
	return out
}

// RoomStateOf 返回某房间的编排状态（测试与诊断用）。
func (s *ChatSession) RoomStateOf(room model.RoomType) RoomState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[room]; ok {
		return st
	}
	return StateIdle
}

// emit 在不持有锁的情况下推送事件。
func (s *ChatSession) emit(ev Event) {
	s.emitLocked(ev)
}

// emitLocked 非阻塞地推送事件；通道满时丢弃并记日志。
// 持锁调用是安全的，通道发送不依赖会话锁。
func (s *ChatSession) emitLocked(ev Event) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.events <- ev:
	default:
		log.Warnf("event buffer full for user %s, dropping %s event", s.userID, ev.Type)
	}
}

// emitStateLocked 推送某房间的加载状态，调用方必须持有会话锁。
func (s *ChatSession) emitStateLocked(room model.RoomType) {
	s.emitLocked(Event{
		Type:           EventState,
		Room:           room,
		IsLoading:      s.pending[room] > 0 && !s.initializing[room],
		IsInitializing: s.initializing[room],
	})
}

// introPayload 返回房间的自动开场载荷。默认房间用 /start 触发
// 服务端预置的开场白；kokler 要求平静倾听式的开场；其余房间
// 要求转换话题并抛出直接、有挑战性的问题。
func introPayload(room model.Room) string {
	switch room.ID {
	case model.RoomYuzlesme:
		return model.StartTrigger
	case model.RoomKokler:
		return "[SISTEM: Kullanıcı 'Kökler' odasına geçti. Konuyu aileye, çocukluğa ve köklere taşı. " +
			"Sakin ve dinleyen bir tonda, yumuşak bir açılış sorusuyla başla.]"
	default:
		return fmt.Sprintf("[SISTEM: Kullanıcı '%s' odasına geçti. Konuyu bu odanın temasına taşı ve "+
			"doğrudan, meydan okuyan bir soruyla başla.]", room.Name)
	}
}
