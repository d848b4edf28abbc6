package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"learnbridge_backend/internal/util"
	"learnbridge_backend/pkg/logger"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMessageSize  = 4096
	sendBuffer      = 256
	authTimeout     = 5 * time.Second
	userTopicPrefix = "user:"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ownerColumns 非管理员订阅表变更时，filter 必须落在这些列上
var ownerColumns = map[string][]string{
	"activity_attempts":    {"student_id"},
	"activity_logs":        {"user_id"},
	"achievements":         {"user_id"},
	"notifications":        {"recipient_user_id"},
	"doctor_patient_links": {"doctor_id", "patient_id"},
}

// Authorizer 判断 userID 能否查看 targetUserID 的数据
type Authorizer interface {
	CanWatch(ctx context.Context, userID uint, role string, targetUserID uint) (bool, error)
}

type Identity struct {
	UserID uint
	Role   string
}

func (i Identity) isAdmin() bool { return i.Role == "admin" }

type ChangeSpec struct {
	Table  string `json:"table"`
	Event  string `json:"event"`
	Filter string `json:"filter"`
}

// clientFrame type: subscribe | unsubscribe | track | untrack | broadcast
type clientFrame struct {
	Type      string          `json:"type"`
	Ref       string          `json:"ref"`
	Topic     string          `json:"topic,omitempty"`
	Changes   []ChangeSpec    `json:"changes,omitempty"`
	Presence  bool            `json:"presence,omitempty"`
	Broadcast []string        `json:"broadcast,omitempty"`
	Event     string          `json:"event,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type serverFrame struct {
	Type    string   `json:"type"` // status | message | error
	Ref     string   `json:"ref,omitempty"`
	Status  State    `json:"status,omitempty"`
	Message *Message `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
}

type Client struct {
	hub      *Hub
	auth     Authorizer
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	identity Identity
	limiter  *rate.Limiter

	mu       sync.Mutex
	channels map[string]*Channel
}

func ServeWs(hub *Hub, auth Authorizer, w http.ResponseWriter, r *http.Request, identity Identity) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("WebSocket upgrade failed", zap.Error(err), zap.Uint("userId", identity.UserID))
		return
	}
	client := &Client{
		hub:      hub,
		auth:     auth,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		identity: identity,
		limiter:  rate.NewLimiter(rate.Limit(20), 40), // 每秒20帧，允许突发40帧
		channels: make(map[string]*Channel),
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		close(c.done)
		c.sweep()
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Error("WebSocket unexpected close", zap.Error(err), zap.Uint("userId", c.identity.UserID))
			}
			return
		}

		if !c.limiter.Allow() {
			continue
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.replyError("", "malformed frame")
			continue
		}
		if err := c.handle(frame); err != nil {
			c.replyError(frame.Ref, err.Error())
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Client) handle(frame clientFrame) error {
	if frame.Ref == "" {
		return fmt.Errorf("ref is required")
	}
	switch frame.Type {
	case "subscribe":
		return c.subscribe(frame)
	case "unsubscribe":
		if ch := c.take(frame.Ref); ch != nil {
			ch.Unsubscribe()
		}
		return nil
	case "track":
		ch := c.lookup(frame.Ref)
		if ch == nil {
			return util.ErrChannelClosed
		}
		return ch.Track(frame.Payload)
	case "untrack":
		ch := c.lookup(frame.Ref)
		if ch == nil {
			return util.ErrChannelClosed
		}
		return ch.Untrack()
	case "broadcast":
		ch := c.lookup(frame.Ref)
		if ch == nil {
			return util.ErrChannelClosed
		}
		return ch.Send(frame.Event, frame.Payload)
	}
	return fmt.Errorf("unknown frame type %q", frame.Type)
}

func (c *Client) subscribe(frame clientFrame) error {
	if c.lookup(frame.Ref) != nil {
		return fmt.Errorf("ref %q already subscribed", frame.Ref)
	}
	if len(frame.Changes) == 0 && !frame.Presence && len(frame.Broadcast) == 0 {
		return fmt.Errorf("nothing to subscribe")
	}
	if (frame.Presence || len(frame.Broadcast) > 0) && frame.Topic == "" {
		return fmt.Errorf("topic is required for presence and broadcast")
	}

	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()
	var targets []uint
	for _, spec := range frame.Changes {
		target, err := c.authorizeChanges(ctx, spec)
		if err != nil {
			return err
		}
		targets = appendTarget(targets, target)
	}
	if frame.Topic != "" {
		target, err := c.authorizeTopic(ctx, frame.Topic)
		if err != nil {
			return err
		}
		targets = appendTarget(targets, target)
	}

	name := fmt.Sprintf("ws:%d:%s:%d", c.identity.UserID, frame.Ref, time.Now().UnixNano())
	opts := []ChannelOption{WithPresenceKey(fmt.Sprintf("user-%d:%s", c.identity.UserID, frame.Ref))}
	if frame.Topic != "" {
		opts = append(opts, WithTopic(frame.Topic))
	}
	ch := c.hub.Channel(name, opts...)
	for _, spec := range frame.Changes {
		if _, err := ch.OnChanges(spec.Table, spec.Event, spec.Filter); err != nil {
			ch.Unsubscribe()
			return err
		}
	}
	if frame.Presence {
		ch.OnPresence()
	}
	for _, ev := range frame.Broadcast {
		ch.OnBroadcast(ev)
	}

	c.mu.Lock()
	c.channels[frame.Ref] = ch
	c.mu.Unlock()

	go c.forward(frame.Ref, ch, targets)
	return ch.Subscribe()
}

// authorizeChanges 管理员不受限；其余用户的 filter 必须是 owner 列上的 eq 条件，且目标可见。
// 返回需要持续校验的他人 ID，自己或管理员返回 0
func (c *Client) authorizeChanges(ctx context.Context, spec ChangeSpec) (uint, error) {
	columns, ok := ownerColumns[spec.Table]
	if !ok {
		return 0, fmt.Errorf("%w: table %q is not watched", util.ErrInvalidFilter, spec.Table)
	}
	f, err := ParseFilter(spec.Filter)
	if err != nil {
		return 0, err
	}
	if c.identity.isAdmin() {
		return 0, nil
	}
	if f == nil || f.Op != OpEq || !contains(columns, f.Column) {
		return 0, util.ErrPermissionDenied
	}
	target, err := strconv.ParseUint(f.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an id", util.ErrInvalidFilter, f.Value)
	}
	return c.authorizeUser(ctx, uint(target))
}

// authorizeTopic user:<id> 形式的 topic 需要对该用户有查看权限，其余 topic 对登录用户开放
func (c *Client) authorizeTopic(ctx context.Context, topic string) (uint, error) {
	if !strings.HasPrefix(topic, userTopicPrefix) || c.identity.isAdmin() {
		return 0, nil
	}
	target, err := strconv.ParseUint(strings.TrimPrefix(topic, userTopicPrefix), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: topic %q", util.ErrInvalidFilter, topic)
	}
	return c.authorizeUser(ctx, uint(target))
}

func (c *Client) authorizeUser(ctx context.Context, target uint) (uint, error) {
	if target == c.identity.UserID {
		return 0, nil
	}
	if c.auth == nil {
		return 0, util.ErrPermissionDenied
	}
	ok, err := c.auth.CanWatch(ctx, c.identity.UserID, c.identity.Role, target)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, util.ErrPermissionDenied
	}
	return target, nil
}

// stillAuthorized 关系解除（如医生取消关联）后立即失去查看权限
func (c *Client) stillAuthorized(targets []uint) error {
	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()
	for _, target := range targets {
		if _, err := c.authorizeUser(ctx, target); err != nil {
			return err
		}
	}
	return nil
}

func appendTarget(targets []uint, target uint) []uint {
	if target == 0 {
		return targets
	}
	for _, t := range targets {
		if t == target {
			return targets
		}
	}
	return append(targets, target)
}

// forward 把订阅的消息与状态转为下行帧，直到队列关闭或连接断开。
// 订阅了他人数据时每条消息前重新鉴权，失败则关闭该订阅
func (c *Client) forward(ref string, ch *Channel, targets []uint) {
	messages, statuses := ch.Messages(), ch.Status()
	for messages != nil || statuses != nil {
		select {
		case msg, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			if len(targets) > 0 {
				if err := c.stillAuthorized(targets); err != nil {
					logger.Log.Info("Realtime subscription revoked",
						zap.Uint("userId", c.identity.UserID),
						zap.String("ref", ref),
						zap.Error(err))
					c.replyError(ref, err.Error())
					c.release(ref, ch)
					ch.Unsubscribe()
					messages = nil
					continue
				}
			}
			c.reply(serverFrame{Type: "message", Ref: ref, Message: &msg})
		case st, ok := <-statuses:
			if !ok {
				statuses = nil
				continue
			}
			c.reply(serverFrame{Type: "status", Ref: ref, Status: st})
		case <-c.done:
			return
		}
	}
}

func (c *Client) reply(frame serverFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		logger.Log.Error("Realtime frame marshal error", zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		logger.Log.Warn("WebSocket send buffer full", zap.Uint("userId", c.identity.UserID))
	}
}

func (c *Client) replyError(ref, message string) {
	c.reply(serverFrame{Type: "error", Ref: ref, Error: message})
}

func (c *Client) lookup(ref string) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[ref]
}

func (c *Client) take(ref string) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := c.channels[ref]
	delete(c.channels, ref)
	return ch
}

// release 仅当 ref 仍指向 ch 时移除
func (c *Client) release(ref string, ch *Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channels[ref] == ch {
		delete(c.channels, ref)
	}
}

// sweep 断线时关闭该连接的全部订阅
func (c *Client) sweep() {
	c.mu.Lock()
	channels := c.channels
	c.channels = make(map[string]*Channel)
	c.mu.Unlock()

	for _, ch := range channels {
		ch.Unsubscribe()
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
