package realtime

import (
	"context"
	"encoding/json"
	"learnbridge_backend/internal/util"
	"learnbridge_backend/pkg/logger"
	"learnbridge_backend/pkg/monitoring"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type changeBinding struct {
	table  string
	event  string
	filter *Filter
}

// Channel 单个订阅。消息进入 Messages() 队列，状态变化进入 Status() 队列，
// 两个队列在 Unsubscribe 时关闭
type Channel struct {
	hub         *Hub
	name        string
	topic       string
	ref         string
	presenceKey string

	changes    []changeBinding
	presence   bool
	broadcasts map[string]bool
	self       bool

	mu      sync.Mutex
	state   State
	closed  bool
	tracked bool
	pending []json.RawMessage
	queue   chan Message
	status  chan State
	once    sync.Once
}

type ChannelOption func(*Channel)

// WithTopic presence 与 broadcast 按 topic 匹配，默认等于频道名
func WithTopic(topic string) ChannelOption {
	return func(c *Channel) { c.topic = topic }
}

func WithPresenceKey(key string) ChannelOption {
	return func(c *Channel) { c.presenceKey = key }
}

// WithBroadcastSelf 自己发送的广播也投递给自己
func WithBroadcastSelf() ChannelOption {
	return func(c *Channel) { c.self = true }
}

func newChannel(h *Hub, name string, queueSize int) *Channel {
	ref := uuid.New().String()
	return &Channel{
		hub:         h,
		name:        name,
		topic:       name,
		ref:         ref,
		presenceKey: ref,
		broadcasts:  make(map[string]bool),
		state:       StateUnsubscribed,
		queue:       make(chan Message, queueSize),
		status:      make(chan State, statusBuffer),
	}
}

// inertChannel 实时服务不可用时返回，队列已关闭，所有操作为空操作
func inertChannel(name string) *Channel {
	c := newChannel(nil, name, 0)
	c.closed = true
	close(c.queue)
	close(c.status)
	c.once.Do(func() {})
	return c
}

func (c *Channel) Name() string { return c.name }
func (c *Channel) Topic() string { return c.topic }

func (c *Channel) Messages() <-chan Message { return c.queue }
func (c *Channel) Status() <-chan State { return c.status }

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnChanges 绑定表变更，event 为 INSERT/UPDATE/DELETE/*，filter 见 ParseFilter
func (c *Channel) OnChanges(table, event, filter string) (*Channel, error) {
	if event == "" {
		event = EventAll
	}
	f, err := ParseFilter(filter)
	if err != nil {
		return c, err
	}
	c.mu.Lock()
	c.changes = append(c.changes, changeBinding{table: table, event: event, filter: f})
	c.mu.Unlock()
	return c, nil
}

func (c *Channel) OnPresence() *Channel {
	c.mu.Lock()
	c.presence = true
	c.mu.Unlock()
	return c
}

// OnBroadcast event 为 "*" 时接收该 topic 上全部广播
func (c *Channel) OnBroadcast(event string) *Channel {
	c.mu.Lock()
	c.broadcasts[event] = true
	c.mu.Unlock()
	return c
}

// Subscribe 立即进入 SUBSCRIBING，异步完成后进入 SUBSCRIBED
func (c *Channel) Subscribe() error {
	if c.hub == nil {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return util.ErrChannelClosed
	}
	if c.state != StateUnsubscribed {
		c.mu.Unlock()
		return nil
	}
	c.setState(StateSubscribing)
	c.mu.Unlock()

	go c.join()
	return nil
}

func (c *Channel) join() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.setState(StateSubscribed)
	pending := c.pending
	c.pending = nil
	presence := c.presence
	c.mu.Unlock()

	if presence {
		c.deliver(Message{Kind: KindPresence, Event: PresenceSync, State: c.hub.presenceState(c.topic)})
	}
	// SUBSCRIBED 之前的 track 在此补发
	for _, payload := range pending {
		if err := c.publishTrack(payload); err != nil {
			logger.Log.Warn("Deferred track failed", zap.String("channel", c.name), zap.Error(err))
		}
	}
}

// setState 调用方持有 c.mu
func (c *Channel) setState(s State) {
	c.state = s
	select {
	case c.status <- s:
	default:
	}
}

// Track 宣告在线状态。订阅尚未完成时先排队，进入 SUBSCRIBED 后发送
func (c *Channel) Track(payload interface{}) error {
	if c.hub == nil {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return util.ErrChannelClosed
	}
	if c.state != StateSubscribed {
		c.pending = append(c.pending, raw)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.publishTrack(raw)
}

func (c *Channel) publishTrack(raw json.RawMessage) error {
	c.mu.Lock()
	c.tracked = true
	c.mu.Unlock()

	c.hub.storePresence(c.topic, c.presenceKey, true)
	return c.hub.publish(context.Background(), Envelope{
		Kind:        KindPresence,
		Topic:       c.topic,
		Event:       PresenceJoin,
		PresenceKey: c.presenceKey,
		Payload:     raw,
	})
}

func (c *Channel) Untrack() error {
	if c.hub == nil {
		return nil
	}
	c.mu.Lock()
	wasTracked := c.tracked
	c.tracked = false
	c.pending = nil
	c.mu.Unlock()
	if !wasTracked {
		return nil
	}
	return c.publishLeave()
}

func (c *Channel) publishLeave() error {
	c.hub.storePresence(c.topic, c.presenceKey, false)
	return c.hub.publish(context.Background(), Envelope{
		Kind:        KindPresence,
		Topic:       c.topic,
		Event:       PresenceLeave,
		PresenceKey: c.presenceKey,
	})
}

// Send 发送临时广播，不做持久化
func (c *Channel) Send(event string, payload interface{}) error {
	if c.hub == nil {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return util.ErrChannelClosed
	}

	env := Envelope{Kind: KindBroadcast, Topic: c.topic, Event: event, Payload: raw, Sender: c.ref}
	if c.self {
		env.Sender = ""
	}
	return c.hub.publish(context.Background(), env)
}

// Unsubscribe 幂等；从注册表移除、发送离开事件并关闭两个队列
func (c *Channel) Unsubscribe() {
	c.once.Do(func() {
		c.mu.Lock()
		wasTracked := c.tracked
		c.tracked = false
		c.pending = nil
		c.closed = true
		c.setState(StateUnsubscribed)
		close(c.queue)
		close(c.status)
		c.mu.Unlock()

		if c.hub == nil {
			return
		}
		c.hub.remove(c)
		if wasTracked {
			if err := c.publishLeave(); err != nil {
				logger.Log.Warn("Presence leave failed", zap.String("channel", c.name), zap.Error(err))
			}
		}
	})
}

// deliver 非阻塞投递，队列满时丢弃
func (c *Channel) deliver(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state != StateSubscribed {
		return false
	}
	select {
	case c.queue <- msg:
		monitoring.RealtimeMessages.WithLabelValues(string(msg.Kind), "out").Inc()
		return true
	default:
		monitoring.RealtimeMessages.WithLabelValues(string(msg.Kind), "dropped").Inc()
		logger.Log.Warn("Realtime queue full, message dropped", zap.String("channel", c.name))
		return false
	}
}

func (c *Channel) matchesChange(env Envelope) bool {
	c.mu.Lock()
	bindings := c.changes
	c.mu.Unlock()

	row := env.Record
	if env.Event == EventDelete {
		row = env.Old
	}
	for _, b := range bindings {
		if b.table != env.Table && b.table != EventAll {
			continue
		}
		if b.event != EventAll && b.event != env.Event {
			continue
		}
		if b.filter.Match(row) {
			return true
		}
	}
	return false
}

func (c *Channel) matchesBroadcast(event string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broadcasts[EventAll] || c.broadcasts[event]
}

func (c *Channel) isTracked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracked
}

func (c *Channel) wantsPresence() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.presence
}
