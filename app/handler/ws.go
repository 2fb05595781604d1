package handler

import (
	"net/http"

	"cinemind/app/logger"
	"cinemind/app/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WSHandler 任务事件长连接处理器
type WSHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewWSHandler 创建长连接处理器
func NewWSHandler(hub *ws.Hub, log *logger.Logger) *WSHandler {
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: log,
	}
}

// Tasks 升级连接并接入订阅中心，阻塞到连接结束
func (h *WSHandler) Tasks(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Errorf("[ws] 升级连接失败: %v", err)
		return
	}

	client := ws.NewClient(h.hub, conn)
	client.Serve()
}
