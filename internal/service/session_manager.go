package service

import (
	"sync"
	"time"

	"golge-go/internal/model"
	"golge-go/internal/repository"
	"golge-go/pkg/webhook"
)

// SessionManager 为每个用户维护至多一个活跃的聊天会话。
// 重连时旧会话被关闭替换；"已自动开场"等进程内状态随之重置，
// 冷启动后由"房间是否已有历史"重新推导。
type SessionManager struct {
	orch        *Orchestrator
	history     repository.HistoryRepository
	progress    repository.ProgressRepository
	hiddenGrace time.Duration

	mu       sync.Mutex
	sessions map[string]*ChatSession
}

// NewSessionManager 创建会话管理器。
func NewSessionManager(client webhook.Client, history repository.HistoryRepository, progress repository.ProgressRepository, hiddenGraceSeconds int) *SessionManager {
	return &SessionManager{
		orch:        NewOrchestrator(client, history),
		history:     history,
		progress:    progress,
		hiddenGrace: time.Duration(hiddenGraceSeconds) * time.Second,
		sessions:    make(map[string]*ChatSession),
	}
}

// Open 为用户创建一个新会话，并关闭同一用户已有的旧会话。
func (m *SessionManager) Open(user *model.User) *ChatSession {
	tracker := NewProgressTracker(m.progress, user.SessionID())
	session := NewChatSession(user, m.orch, m.history, tracker, m.hiddenGrace)

	m.mu.Lock()
	if old, ok := m.sessions[session.userID]; ok {
		old.Close()
	}
	m.sessions[session.userID] = session
	m.mu.Unlock()

	return session
}

// CloseSession 关闭并移除某个会话（仅当它仍是该用户的当前会话）。
func (m *SessionManager) CloseSession(session *ChatSession) {
	m.mu.Lock()
	if current, ok := m.sessions[session.userID]; ok && current == session {
		delete(m.sessions, session.userID)
	}
	m.mu.Unlock()
	session.Close()
}
