package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"golge-go/internal/model"
	"golge-go/internal/service"
	"golge-go/pkg/log"
	"golge-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理 WebSocket 聊天连接：
// 把连接绑定到一个 ChatSession，读取客户端指令，
// 并把会话事件流推送回去。
type ChatHandler struct {
	sessions    *service.SessionManager
	userService service.UserService
	jwtManager  *token.JWTManager
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(sessions *service.SessionManager, userService service.UserService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{
		sessions:    sessions,
		userService: userService,
		jwtManager:  jwtManager,
	}
}

// clientCommand 是客户端通过 WebSocket 发送的指令。
type clientCommand struct {
	Type      string               `json:"type"`
	Room      model.RoomType       `json:"room,omitempty"`
	Content   string               `json:"content,omitempty"`
	Safe      bool                 `json:"safe,omitempty"`
	Hidden    bool                 `json:"hidden,omitempty"`
	Archetype string               `json:"archetype,omitempty"`
	Tasks     []service.TaskResult `json:"tasks,omitempty"`
}

// Handle 处理一个传入的 WebSocket 连接。
// token 路径参数是常规的 access token。
func (h *ChatHandler) Handle(c *gin.Context) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}

	user, err := h.userService.GetProfile(claims.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	session := h.sessions.Open(user)
	defer h.sessions.CloseSession(session)

	log.Infof("WebSocket 连接已建立，用户: %s", claims.Username)

	// gorilla/websocket 要求单写者，事件推送集中在这个 goroutine
	go func() {
		for {
			select {
			case <-session.Done():
				return
			case ev := <-session.Events():
				if err := conn.WriteJSON(ev); err != nil {
					log.Warnf("向 WebSocket 写入事件失败: %v", err)
					return
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		var cmd clientCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			log.Warnf("无法解析客户端指令: %v", err)
			continue
		}

		ctx := c.Request.Context()
		switch cmd.Type {
		case "switch_room":
			if err := session.SwitchRoom(ctx, cmd.Room); err != nil {
				if errors.Is(err, service.ErrRoomLocked) {
					// locked 事件已由会话推送，这里只记录
					log.Infof("用户 %s 尝试进入未解锁的房间 %s", session.UserID(), cmd.Room)
				} else {
					log.Warnf("切换房间失败: %v", err)
				}
			}
		case "send":
			session.SendMessage(ctx, cmd.Content)
		case "complete_report":
			session.CompleteReport(ctx, service.CompletedReport{
				Archetype: cmd.Archetype,
				Tasks:     cmd.Tasks,
			})
		case "switch_mode":
			session.SwitchMode(ctx, cmd.Safe)
		case "visibility":
			session.SetVisibility(cmd.Hidden)
		default:
			log.Warnf("未知的客户端指令类型: %s", cmd.Type)
		}
	}
}
