package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	heartbeatInterval = 30 * time.Second
	sendBufferSize    = 64
)

// subscribeMessage 客户端指令，随时可发
type subscribeMessage struct {
	Action string `json:"action"`
	TaskID string `json:"task_id"`
}

// heartbeatMessage 空闲时周期下发的心跳
type heartbeatMessage struct {
	Type string `json:"type"`
	TS   string `json:"ts"`
}

// Client 一条活跃的 WebSocket 连接。
// 出站消息经带缓冲的 send 通道由写协程串行发出，
// 缓冲已满或连接已关闭都视为发送失败。
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient 包装一条已升级的连接并注册到订阅中心
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	c := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	hub.Connect(c)
	return c
}

// Serve 启动读写协程，阻塞到连接结束
func (c *Client) Serve() {
	go c.writePump()
	c.readPump()
}

// trySend 非阻塞投递一条出站消息，失败返回 false
func (c *Client) trySend(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		// 缓冲已满，消费端跟不上
		return false
	}
}

// close 终止连接，幂等
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// readPump 读取客户端指令，连接错误时触发断开
func (c *Client) readPump() {
	defer c.hub.Disconnect(c)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg subscribeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Action == "subscribe" && msg.TaskID != "" {
			c.hub.Subscribe(c, msg.TaskID)
		}
	}
}

// writePump 串行发送出站消息，空闲时下发心跳
func (c *Client) writePump() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.hub.Disconnect(c)
				return
			}
		case <-ticker.C:
			hb := heartbeatMessage{Type: "heartbeat", TS: time.Now().UTC().Format(time.RFC3339)}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(hb); err != nil {
				c.hub.Disconnect(c)
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}
