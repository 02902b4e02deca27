package websocket

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"

	"github.com/cioer/DoAn-sub006/internal/auth"
)

var upgrader = gorillaWS.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 生产环境应检查 Origin
		return true
	},
}

// WebSocketHandler 课题状态订阅处理器
// 路由 /ws/proposals/:id,token 经 query 参数传递(浏览器 WS 不带自定义头)
func WebSocketHandler(hub *Hub, validator *auth.KeycloakTokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		proposalID := c.Param("id")
		if proposalID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing proposal id"})
			return
		}

		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to upgrade connection"})
			return
		}

		client := NewClient(
			uuid.New().String(),
			claims.Sub,
			proposalID,
			hub,
			conn,
		)

		hub.Register <- client

		go client.ReadPump()
		go client.WritePump()
	}
}

// Notifier 状态转换事件推送器
// 实现 service.TransitionNotifier,提交后尽力推送,失败不回传
type Notifier struct {
	hub *Hub
}

// NewNotifier 创建推送器
func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

// NotifyTransition 推送状态转换事件
func (n *Notifier) NotifyTransition(proposalID string, event interface{}) {
	if n == nil || n.hub == nil {
		return
	}
	message, err := json.Marshal(map[string]interface{}{
		"type":        "state_changed",
		"proposal_id": proposalID,
		"event":       event,
	})
	if err != nil {
		return
	}
	n.hub.BroadcastToProposal(proposalID, message)
}
