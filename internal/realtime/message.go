package realtime

import (
	"encoding/json"
	"time"
)

type Kind string

const (
	KindChanges   Kind = "changes"
	KindPresence  Kind = "presence"
	KindBroadcast Kind = "broadcast"
)

// 表变更事件
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
	EventAll    = "*"
)

// 在线状态事件
const (
	PresenceJoin  = "join"
	PresenceLeave = "leave"
	PresenceSync  = "sync"
)

// State 订阅状态：UNSUBSCRIBED -> SUBSCRIBING -> SUBSCRIBED -> UNSUBSCRIBED
type State string

const (
	StateUnsubscribed State = "UNSUBSCRIBED"
	StateSubscribing  State = "SUBSCRIBING"
	StateSubscribed   State = "SUBSCRIBED"
)

// Envelope 在 Bus 上跨实例传递的消息
type Envelope struct {
	Kind        Kind                   `json:"kind"`
	Topic       string                 `json:"topic,omitempty"`
	Event       string                 `json:"event"`
	Table       string                 `json:"table,omitempty"`
	Record      map[string]interface{} `json:"record,omitempty"`
	Old         map[string]interface{} `json:"old,omitempty"`
	Payload     json.RawMessage        `json:"payload,omitempty"`
	PresenceKey string                 `json:"presenceKey,omitempty"`
	Sender      string                 `json:"sender,omitempty"`
	At          time.Time              `json:"at"`
}

// Message 投递到单个订阅队列的消息；State 仅在 presence sync 时填充
type Message struct {
	Kind        Kind                       `json:"kind"`
	Event       string                     `json:"event"`
	Table       string                     `json:"table,omitempty"`
	Record      map[string]interface{}     `json:"record,omitempty"`
	Old         map[string]interface{}     `json:"old,omitempty"`
	Payload     json.RawMessage            `json:"payload,omitempty"`
	PresenceKey string                     `json:"presenceKey,omitempty"`
	State       map[string]json.RawMessage `json:"state,omitempty"`
	At          time.Time                  `json:"at"`
}

func messageFrom(env Envelope) Message {
	return Message{
		Kind:        env.Kind,
		Event:       env.Event,
		Table:       env.Table,
		Record:      env.Record,
		Old:         env.Old,
		Payload:     env.Payload,
		PresenceKey: env.PresenceKey,
		At:          env.At,
	}
}
