package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"learnbridge_backend/pkg/logger"
	"learnbridge_backend/pkg/monitoring"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	defaultQueueSize = 256
	statusBuffer     = 4
	presenceTTL      = 2 * time.Minute // 在线状态过期时间
	presenceRefresh  = time.Minute
)

// Hub 进程内的订阅注册表，负责把 Bus 上的消息分发到各订阅队列
type Hub struct {
	bus       Bus
	rdb       *redis.Client
	queueSize int

	mu       sync.RWMutex
	channels map[string]*Channel

	presenceMu sync.Mutex
	presence   map[string]map[string]json.RawMessage

	ctx    context.Context
	cancel context.CancelFunc
}

type HubOption func(*Hub)

// WithPresenceStore 在线状态同步写入 Redis，带 TTL
func WithPresenceStore(rdb *redis.Client) HubOption {
	return func(h *Hub) { h.rdb = rdb }
}

func WithQueueSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

func NewHub(bus Bus, opts ...HubOption) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		bus:       bus,
		queueSize: defaultQueueSize,
		channels:  make(map[string]*Channel),
		presence:  make(map[string]map[string]json.RawMessage),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start 订阅总线；配置了 Redis 时定期续期在线状态
func (h *Hub) Start() error {
	if err := h.bus.Subscribe(h.ctx, h.dispatch); err != nil {
		return err
	}
	if h.rdb != nil {
		go h.refreshLoop()
	}
	return nil
}

// Stop 一次性关闭全部订阅并清理在线状态
func (h *Hub) Stop() {
	if h == nil {
		return
	}
	logger.Log.Info("Realtime hub stopping: closing all channels...")
	closed := h.RemoveAll()
	h.cancel()
	if err := h.bus.Close(); err != nil {
		logger.Log.Warn("Realtime bus close error", zap.Error(err))
	}
	monitoring.RealtimeOpenChannels.Set(0)
	logger.Log.Info("Realtime hub stopped", zap.Int("closedChannels", closed))
}

// Channel 创建并登记一个订阅；名称冲突时追加序号
func (h *Hub) Channel(name string, opts ...ChannelOption) *Channel {
	if h == nil {
		return inertChannel(name)
	}

	c := newChannel(h, name, h.queueSize)
	for _, opt := range opts {
		opt(c)
	}

	h.mu.Lock()
	unique := c.name
	for i := 1; ; i++ {
		if _, exists := h.channels[unique]; !exists {
			break
		}
		unique = fmt.Sprintf("%s-%d", c.name, i)
	}
	c.name = unique
	h.channels[unique] = c
	h.mu.Unlock()

	monitoring.RealtimeOpenChannels.Inc()
	return c
}

// SubscribeTable 监听某表的变更。频道名带时间戳后缀，各订阅互不干扰。
// hub 为 nil 时返回已关闭的队列和空操作的取消函数
func (h *Hub) SubscribeTable(table, event, filter string) (<-chan Message, func(), error) {
	if h == nil {
		c := inertChannel(table)
		return c.Messages(), func() {}, nil
	}

	name := fmt.Sprintf("changes:%s:%s:%d", table, filter, time.Now().UnixNano())
	c := h.Channel(name)
	if _, err := c.OnChanges(table, event, filter); err != nil {
		c.Unsubscribe()
		return nil, func() {}, err
	}
	if err := c.Subscribe(); err != nil {
		c.Unsubscribe()
		return nil, func() {}, err
	}
	return c.Messages(), c.Unsubscribe, nil
}

func (h *Hub) Has(name string) bool {
	if h == nil {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.channels[name]
	return ok
}

func (h *Hub) Len() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels)
}

// RemoveAll 一次清空注册表，返回关闭数量
func (h *Hub) RemoveAll() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	all := make([]*Channel, 0, len(h.channels))
	for _, c := range h.channels {
		all = append(all, c)
	}
	h.mu.RUnlock()

	for _, c := range all {
		c.Unsubscribe()
	}
	return len(all)
}

func (h *Hub) remove(c *Channel) {
	h.mu.Lock()
	if existing, ok := h.channels[c.name]; ok && existing == c {
		delete(h.channels, c.name)
		monitoring.RealtimeOpenChannels.Dec()
	}
	h.mu.Unlock()
}

func (h *Hub) snapshot() []*Channel {
	h.mu.RLock()
	defer h.mu.RUnlock()
	all := make([]*Channel, 0, len(h.channels))
	for _, c := range h.channels {
		all = append(all, c)
	}
	return all
}

func (h *Hub) publish(ctx context.Context, env Envelope) error {
	if env.At.IsZero() {
		env.At = time.Now()
	}
	monitoring.RealtimeMessages.WithLabelValues(string(env.Kind), "in").Inc()
	return h.bus.Publish(ctx, env)
}

// PublishChange 由数据变更钩子调用；记录统一做一次 JSON 归一化，
// 保证本地总线与 Redis 总线投递的数据形态一致
func (h *Hub) PublishChange(ctx context.Context, table, event string, record, old map[string]interface{}) error {
	if h == nil {
		return nil
	}
	env := Envelope{Kind: KindChanges, Table: table, Event: event}
	var err error
	if env.Record, err = normalize(record); err != nil {
		return err
	}
	if env.Old, err = normalize(old); err != nil {
		return err
	}
	return h.publish(ctx, env)
}

func normalize(row map[string]interface{}) (map[string]interface{}, error) {
	if row == nil {
		return nil, nil
	}
	data, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *Hub) dispatch(env Envelope) {
	switch env.Kind {
	case KindChanges:
		for _, c := range h.snapshot() {
			if c.matchesChange(env) {
				c.deliver(messageFrom(env))
			}
		}
	case KindPresence:
		state := h.applyPresence(env)
		for _, c := range h.snapshot() {
			if c.topic != env.Topic || !c.wantsPresence() {
				continue
			}
			c.deliver(messageFrom(env))
			c.deliver(Message{Kind: KindPresence, Event: PresenceSync, State: state, At: env.At})
		}
	case KindBroadcast:
		for _, c := range h.snapshot() {
			if c.topic == env.Topic && c.ref != env.Sender && c.matchesBroadcast(env.Event) {
				c.deliver(messageFrom(env))
			}
		}
	default:
		logger.Log.Warn("Unknown realtime envelope", zap.String("kind", string(env.Kind)))
	}
}

// applyPresence 更新 topic 的在线表并返回副本
func (h *Hub) applyPresence(env Envelope) map[string]json.RawMessage {
	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()

	members := h.presence[env.Topic]
	switch env.Event {
	case PresenceJoin:
		if members == nil {
			members = make(map[string]json.RawMessage)
			h.presence[env.Topic] = members
		}
		members[env.PresenceKey] = env.Payload
	case PresenceLeave:
		delete(members, env.PresenceKey)
		if len(members) == 0 {
			delete(h.presence, env.Topic)
		}
	}
	return copyState(members)
}

func (h *Hub) presenceState(topic string) map[string]json.RawMessage {
	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()
	return copyState(h.presence[topic])
}

func copyState(members map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(members))
	for k, v := range members {
		out[k] = v
	}
	return out
}

func presenceKey(topic, key string) string {
	return fmt.Sprintf("realtime:presence:%s:%s", topic, key)
}

func (h *Hub) storePresence(topic, key string, online bool) {
	if h.rdb == nil {
		return
	}
	var err error
	if online {
		err = h.rdb.Set(h.ctx, presenceKey(topic, key), "true", presenceTTL).Err()
	} else {
		err = h.rdb.Del(h.ctx, presenceKey(topic, key)).Err()
	}
	if err != nil {
		logger.Log.Warn("Failed to mirror presence", zap.String("topic", topic), zap.Error(err))
	}
}

// UserOnline 用户在自己的 user:<id> topic 上有任一 track 即视为在线
func (h *Hub) UserOnline(ctx context.Context, userID uint) bool {
	return h.TopicOnline(ctx, fmt.Sprintf("%s%d", userTopicPrefix, userID))
}

// TopicOnline 本地在线表为空时再查 Redis，覆盖其他实例上的成员
func (h *Hub) TopicOnline(ctx context.Context, topic string) bool {
	if h == nil {
		return false
	}
	if len(h.presenceState(topic)) > 0 {
		return true
	}
	if h.rdb == nil {
		return false
	}
	iter := h.rdb.Scan(ctx, 0, presenceKey(topic, "*"), 100).Iterator()
	return iter.Next(ctx)
}

func (h *Hub) refreshLoop() {
	ticker := time.NewTicker(presenceRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.refreshPresence()
		}
	}
}

// refreshPresence 为本实例上已 track 的订阅批量续期
func (h *Hub) refreshPresence() {
	pipe := h.rdb.Pipeline()
	count := 0
	for _, c := range h.snapshot() {
		if c.isTracked() {
			pipe.Expire(h.ctx, presenceKey(c.topic, c.presenceKey), presenceTTL)
			count++
		}
	}
	if count > 0 {
		if _, err := pipe.Exec(h.ctx); err != nil {
			logger.Log.Warn("Presence refresh failed", zap.Error(err))
			return
		}
		logger.Log.Debug("Refreshed presence", zap.Int("count", count))
	}
}
