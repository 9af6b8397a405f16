package service

import (
	"context"
	"time"

	"golge-go/internal/model"
	"golge-go/internal/repository"
	"golge-go/pkg/log"
	"golge-go/pkg/webhook"
)

// 用户可见的固定文案。所有失败都通过对话通道以 AI 消息呈现。
const (
	fallbackReply = "Üzgünüm, bir yanıt oluşturamadım."
	errorReply    = "Bir hata oluştu. Lütfen daha sonra tekrar deneyin."
	stalledReply  = "Bağlantı kopmuş olabilir. Lütfen mesajını tekrar gönder."
)

// 迟到响应落库时的独立超时，不受原请求的 context 影响。
const persistTimeout = 10 * time.Second

// Orchestrator 负责 AI 请求的完整生命周期：带硬超时地发出请求、
// 把响应与派发时按值捕获的目标房间配对，并在用户已经离开目标
// 房间时丢弃响应的可见副作用（仍然为其所属房间持久化）。
//
// 核心不变式：陈旧响应永远不会被拼进当前屏幕上的消息序列。
type Orchestrator struct {
	client  webhook.Client
	history repository.HistoryRepository
}

// NewOrchestrator 创建一个新的编排器。
func NewOrchestrator(client webhook.Client, history repository.HistoryRepository) *Orchestrator {
	return &Orchestrator{client: client, history: history}
}

// Dispatch 向 AI 后端异步派发一条请求。target 在此刻按值捕获，
// 之后用户切换房间不会改变这次请求的归属。initializing 标记
// 这是不是一次房间自动开场。
func (o *Orchestrator) Dispatch(s *ChatSession, payload string, target model.RoomType, initializing bool) {
	req := webhook.Request{
		Message:   payload,
		SessionID: s.userID,
		Room:      string(target),
		Mode:      s.Mode(),
		Gender:    s.gender,
	}

	s.mu.Lock()
	s.pending[target]++
	epoch := s.epoch[target]
	if initializing {
		s.initializing[target] = true
	}
	s.states[target] = StateLoading
	if s.viewedRoom == target {
		s.emitStateLocked(target)
	}
	s.mu.Unlock()

	go o.run(s, req, target, epoch)
}

// run 执行一次请求并解决其结果。请求本体带硬超时；
// 会话被关闭不中断请求，迟到的成功响应仍会落库。
func (o *Orchestrator) run(s *ChatSession, req webhook.Request, target model.RoomType, epoch int) {
	ctx, cancel := context.WithTimeout(context.Background(), o.client.Timeout())
	defer cancel()

	content, err := o.client.Send(ctx, req)
	if err != nil {
		o.resolveFailure(s, target, epoch, err)
		return
	}
	if content == "" {
		// 响应里没有任何可识别的回复字段，绝不渲染空消息
		content = fallbackReply
	}
	o.resolveSuccess(s, target, epoch, content)
}

// resolveSuccess 先为目标房间持久化 AI 消息，然后在锁内重新读取
// 当前房间：只有用户仍停留在目标房间时才把消息拼进可见序列。
func (o *Orchestrator) resolveSuccess(s *ChatSession, target model.RoomType, epoch int, content string) {
	aiMsg := model.NewMessage(content, model.SenderAI)

	// 无论陈旧与否，响应都属于它的目标房间，先落库再谈展示
	persistCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := o.history.AppendRecord(persistCtx, s.userID, target, model.SenderAI, content); err != nil {
		log.Warnf("failed to persist ai message for room %s: %v", target, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch[target] != epoch {
		// 该房间的这一代请求已被后台停滞判定作废
		s.states[target] = StateStale
		return
	}
	if s.pending[target] > 0 {
		s.pending[target]--
	}

	if s.viewedRoom != target {
		// 用户已经切走：静默保留在目标房间的离屏序列里，
		// 绝不触碰屏幕上的内容
		s.states[target] = StateStale
		s.initializing[target] = false
		s.transcripts[target] = append(s.transcripts[target], aiMsg)
		return
	}

	s.states[target] = StateDelivered
	s.initializing[target] = false
	s.transcripts[target] = append(s.transcripts[target], aiMsg)

	ev := Event{Type: EventMessage, Room: target, Message: &aiMsg}
	if report, ok := model.ParseShadowReport(content); ok {
		ev.Report = report
	}
	s.emitLocked(ev)
	s.emitStateLocked(target)
}

// resolveFailure 处理网络错误、非 2xx 状态和超时/取消。
// 不自动重试；用户仍在目标房间时追加一条可见的错误消息。
func (o *Orchestrator) resolveFailure(s *ChatSession, target model.RoomType, epoch int, cause error) {
	log.Errorf("webhook dispatch for room %s failed: %v", target, cause)

	s.mu.Lock()

	if s.epoch[target] != epoch {
		s.states[target] = StateStale
		s.mu.Unlock()
		return
	}
	if s.pending[target] > 0 {
		s.pending[target]--
	}

	if s.viewedRoom != target {
		// 离屏失败不打扰用户，也没有展示过任何内容，无需落库
		s.states[target] = StateStale
		s.initializing[target] = false
		s.mu.Unlock()
		return
	}

	errMsg := model.NewMessage(errorReply, model.SenderAI)
	s.states[target] = StateErrored
	s.initializing[target] = false
	s.transcripts[target] = append(s.transcripts[target], errMsg)
	s.emitLocked(Event{Type: EventMessage, Room: target, Message: &errMsg})
	s.emitStateLocked(target)
	s.mu.Unlock()

	// 错误气泡展示过就要可重建，与普通消息一样落库
	persistCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := o.history.AppendRecord(persistCtx, s.userID, target, model.SenderAI, errorReply); err != nil {
		log.Warnf("failed to persist error message for room %s: %v", target, err)
	}
}
