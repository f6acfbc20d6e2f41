package approval

import (
	"sync"
	"time"
)

// WorkflowEvent 描述审批链的状态变化
type WorkflowEvent struct {
	WorkflowID        string         `json:"workflowId"`
	ApprovalRequestID string         `json:"approvalRequestId"`
	ModuleName        string         `json:"moduleName"`
	ServiceName       string         `json:"serviceName"`
	Status            ApprovalStatus `json:"status"`
	ActorID           string         `json:"actorId,omitempty"`
	Comments          string         `json:"comments,omitempty"`
	// Completed 整条链是否已结束（全部批准或失败终止）
	Completed  bool      `json:"completed"`
	OccurredAt time.Time `json:"occurredAt"`
}

// EventBusConfig 控制事件总线行为
type EventBusConfig struct {
	BufferSize int
}

// EventBus 按 workflow_id 订阅的本地事件总线。
// 只承载通知，不缓存任何审批状态，状态一律从存储读取。
type EventBus struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]chan WorkflowEvent
	seq    uint64
	buffer int
}

// NewEventBus 创建事件总线
func NewEventBus(cfg *EventBusConfig) *EventBus {
	buffer := 1
	if cfg != nil && cfg.BufferSize > 0 {
		buffer = cfg.BufferSize
	}
	return &EventBus{
		subs:   make(map[string]map[uint64]chan WorkflowEvent),
		buffer: buffer,
	}
}

// Publish 发布事件
func (b *EventBus) Publish(evt WorkflowEvent) {
	if b == nil {
		return
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	b.mu.RLock()
	listeners := b.subs[evt.WorkflowID]
	b.mu.RUnlock()
	for _, ch := range listeners {
		select {
		case ch <- evt:
		default:
			// 接收方处理慢则丢弃，保持非阻塞
		}
	}
}

// Subscribe 订阅指定工作流的事件，返回取消函数
func (b *EventBus) Subscribe(workflowID string) (<-chan WorkflowEvent, func()) {
	if b == nil {
		return nil, nil
	}
	ch := make(chan WorkflowEvent, b.buffer)
	b.mu.Lock()
	b.seq++
	id := b.seq
	if _, ok := b.subs[workflowID]; !ok {
		b.subs[workflowID] = make(map[uint64]chan WorkflowEvent)
	}
	b.subs[workflowID][id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.removeListener(workflowID, id)
	}
	return ch, cancel
}

func (b *EventBus) removeListener(workflowID string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if listeners, ok := b.subs[workflowID]; ok {
		if ch, exists := listeners[id]; exists {
			delete(listeners, id)
			close(ch)
		}
		if len(listeners) == 0 {
			delete(b.subs, workflowID)
		}
	}
}
