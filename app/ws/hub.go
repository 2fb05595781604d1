package ws

import (
	"encoding/json"
	"sync"

	"cinemind/app/logger"
	"cinemind/app/service"
)

// Hub 维护任务标识与活跃连接之间的多对多订阅关系，
// 并把任务事件广播给订阅者。
// 订阅表只在这里变更，所有入口都持锁，外部不直接访问。
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Client]bool // 任务 -> 订阅连接
	interests   map[*Client]map[string]bool // 连接 -> 订阅任务
	log         *logger.Logger
}

// NewHub 创建订阅中心
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]map[*Client]bool),
		interests:   make(map[*Client]map[string]bool),
		log:         log,
	}
}

// Connect 注册一个新连接，初始没有任何订阅
func (h *Hub) Connect(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.interests[c]; !ok {
		h.interests[c] = make(map[string]bool)
	}
}

// Subscribe 登记连接对任务的订阅，双向记录，幂等
func (h *Hub) Subscribe(c *Client, taskID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscribers[taskID]
	if !ok {
		subs = make(map[*Client]bool)
		h.subscribers[taskID] = subs
	}
	subs[c] = true

	interests, ok := h.interests[c]
	if !ok {
		interests = make(map[string]bool)
		h.interests[c] = interests
	}
	interests[taskID] = true

	h.log.Infof("[ws] 客户端订阅任务: TaskID=%s", taskID)
}

// Disconnect 把连接从所有任务的订阅集中摘除并关闭，幂等。
// 两个方向的记录一起清理，不留悬挂引用。
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	for taskID := range h.interests[c] {
		if subs, ok := h.subscribers[taskID]; ok {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.subscribers, taskID)
			}
		}
	}
	delete(h.interests, c)
	h.mu.Unlock()

	c.close()
}

// Broadcast 把事件发给任务的全部订阅连接。
// 没有订阅者时为空操作；单个连接发送失败触发该连接断开，
// 不影响同一次广播中的其他连接。
func (h *Hub) Broadcast(taskID string, event service.TaskEvent) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.subscribers[taskID]))
	for c := range h.subscribers[taskID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		h.log.Errorf("[ws] 序列化事件失败: TaskID=%s, 错误: %v", taskID, err)
		return
	}

	var failed []*Client
	for _, c := range targets {
		if !c.trySend(data) {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		h.log.Warnf("[ws] 发送失败，断开连接: TaskID=%s", taskID)
		h.Disconnect(c)
	}
}

// SubscriberCount 返回任务当前的订阅连接数
func (h *Hub) SubscriberCount(taskID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[taskID])
}
