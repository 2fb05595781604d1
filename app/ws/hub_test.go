package ws

import (
	"encoding/json"
	"testing"

	"cinemind/app/config"
	"cinemind/app/logger"
	"cinemind/app/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	return NewHub(logger.New(config.LogConfig{Level: "error", Format: "text", Output: "stdout"}))
}

func newTestClient(h *Hub) *Client {
	return NewClient(h, nil)
}

func TestSubscribeIsIdempotent(t *testing.T) {
	h := newTestHub()
	c := newTestClient(h)

	h.Subscribe(c, "task-1")
	h.Subscribe(c, "task-1")
	h.Subscribe(c, "task-2")

	assert.Equal(t, 1, h.SubscriberCount("task-1"))
	assert.Equal(t, 1, h.SubscriberCount("task-2"))
}

func TestDisconnectRemovesBothDirections(t *testing.T) {
	h := newTestHub()
	a := newTestClient(h)
	b := newTestClient(h)

	h.Subscribe(a, "task-1")
	h.Subscribe(b, "task-1")
	h.Subscribe(a, "task-2")

	h.Disconnect(a)

	assert.Equal(t, 1, h.SubscriberCount("task-1"))
	assert.Zero(t, h.SubscriberCount("task-2"))
	assert.NotContains(t, h.interests, a)
	assert.Contains(t, h.interests, b)

	// 幂等
	h.Disconnect(a)
	assert.Equal(t, 1, h.SubscriberCount("task-1"))
}

func TestBroadcastReachesOnlySubscribers(t *testing.T) {
	h := newTestHub()
	sub := newTestClient(h)
	other := newTestClient(h)

	h.Subscribe(sub, "task-1")
	h.Subscribe(other, "task-2")

	event := service.TaskEvent{Type: "running", TaskID: "task-1", Progress: 40}
	h.Broadcast("task-1", event)

	select {
	case data := <-sub.send:
		var got service.TaskEvent
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, event, got)
	default:
		t.Fatal("订阅者应收到事件")
	}

	select {
	case <-other.send:
		t.Fatal("未订阅该任务的连接不应收到事件")
	default:
	}
}

func TestBroadcastWithoutSubscribersIsNoop(t *testing.T) {
	h := newTestHub()
	c := newTestClient(h)

	h.Broadcast("task-none", service.TaskEvent{Type: "queued", TaskID: "task-none"})

	select {
	case <-c.send:
		t.Fatal("没有订阅者时不应投递任何消息")
	default:
	}
}

func TestBroadcastEvictsSlowClient(t *testing.T) {
	h := newTestHub()
	slow := newTestClient(h)
	h.Subscribe(slow, "task-1")

	// 填满发送缓冲，模拟消费端停滞
	for i := 0; i < sendBufferSize; i++ {
		require.True(t, slow.trySend([]byte("{}")))
	}
	require.False(t, slow.trySend([]byte("{}")))

	h.Broadcast("task-1", service.TaskEvent{Type: "running", TaskID: "task-1", Progress: 50})

	assert.Zero(t, h.SubscriberCount("task-1"), "发送失败的连接应被摘除")
	assert.NotContains(t, h.interests, slow)

	// 断开后的投递直接失败
	assert.False(t, slow.trySend([]byte("{}")))
}

func TestTrySendAfterClose(t *testing.T) {
	h := newTestHub()
	c := newTestClient(h)
	h.Subscribe(c, "task-1")

	c.close()
	assert.False(t, c.trySend([]byte("{}")))
}
