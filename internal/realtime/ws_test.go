package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type parentOf struct {
	parent, child uint
}

func (p parentOf) CanWatch(ctx context.Context, userID uint, role string, targetUserID uint) (bool, error) {
	return userID == p.parent && targetUserID == p.child, nil
}

// revocableLink 模拟可被解除的医患关联
type revocableLink struct {
	doctor, patient uint
	revoked         atomic.Bool
}

func (l *revocableLink) CanWatch(ctx context.Context, userID uint, role string, targetUserID uint) (bool, error) {
	return !l.revoked.Load() && userID == l.doctor && targetUserID == l.patient, nil
}

func dialClient(t *testing.T, h *Hub, auth Authorizer, identity Identity) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(h, auth, w, r, identity)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) serverFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame serverFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

// waitSubscribed 跳过 SUBSCRIBING，直到收到 SUBSCRIBED
func waitSubscribed(t *testing.T, conn *websocket.Conn, ref string) {
	t.Helper()
	for {
		frame := readFrame(t, conn)
		require.Equal(t, "status", frame.Type, "unexpected frame: %+v", frame)
		require.Equal(t, ref, frame.Ref)
		if frame.Status == StateSubscribed {
			return
		}
	}
}

func TestWsSubscribeOwnChanges(t *testing.T) {
	h := newTestHub(t)
	conn := dialClient(t, h, nil, Identity{UserID: 5, Role: "child"})

	require.NoError(t, conn.WriteJSON(clientFrame{
		Type:    "subscribe",
		Ref:     "inbox",
		Changes: []ChangeSpec{{Table: "notifications", Event: EventInsert, Filter: "recipient_user_id=eq.5"}},
	}))
	waitSubscribed(t, conn, "inbox")

	require.NoError(t, h.PublishChange(context.Background(), "notifications", EventInsert,
		map[string]interface{}{"id": 1, "recipient_user_id": 5, "title": "hi"}, nil))
	frame := readFrame(t, conn)
	assert.Equal(t, "message", frame.Type)
	assert.Equal(t, "inbox", frame.Ref)
	require.NotNil(t, frame.Message)
	assert.Equal(t, "hi", frame.Message.Record["title"])

	require.NoError(t, conn.WriteJSON(clientFrame{Type: "unsubscribe", Ref: "inbox"}))
	frame = readFrame(t, conn)
	assert.Equal(t, "status", frame.Type)
	assert.Equal(t, StateUnsubscribed, frame.Status)
	require.Eventually(t, func() bool { return h.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestWsRejectsForeignFilters(t *testing.T) {
	h := newTestHub(t)
	conn := dialClient(t, h, parentOf{parent: 2, child: 3}, Identity{UserID: 2, Role: "parent"})

	cases := []ChangeSpec{
		{Table: "notifications", Filter: "recipient_user_id=eq.4"},
		{Table: "notifications", Filter: ""},
		{Table: "notifications", Filter: "recipient_user_id=gt.0"},
		{Table: "users", Filter: "id=eq.2"},
		{Table: "notifications", Filter: "recipient_user_id=eq.x"},
	}
	for i, spec := range cases {
		ref := string(rune('a' + i))
		require.NoError(t, conn.WriteJSON(clientFrame{Type: "subscribe", Ref: ref, Changes: []ChangeSpec{spec}}))
		frame := readFrame(t, conn)
		assert.Equal(t, "error", frame.Type, "%+v", spec)
		assert.Equal(t, ref, frame.Ref)
	}
	assert.Equal(t, 0, h.Len())

	// 家长可以订阅自己孩子的数据
	require.NoError(t, conn.WriteJSON(clientFrame{
		Type:    "subscribe",
		Ref:     "child",
		Changes: []ChangeSpec{{Table: "activity_attempts", Filter: "student_id=eq.3"}},
	}))
	waitSubscribed(t, conn, "child")
}

func TestWsUserTopicAndBroadcast(t *testing.T) {
	h := newTestHub(t)
	conn := dialClient(t, h, nil, Identity{UserID: 7, Role: "child"})

	require.NoError(t, conn.WriteJSON(clientFrame{Type: "subscribe", Ref: "x", Topic: "user:8", Presence: true}))
	assert.Equal(t, "error", readFrame(t, conn).Type)

	require.NoError(t, conn.WriteJSON(clientFrame{Type: "subscribe", Ref: "room", Topic: "user:7", Broadcast: []string{"*"}}))
	waitSubscribed(t, conn, "room")

	peer := h.Channel("peer", WithTopic("user:7"))
	subscribed(t, peer)
	require.NoError(t, peer.Send("cheer", map[string]string{"msg": "well done"}))

	frame := readFrame(t, conn)
	assert.Equal(t, "message", frame.Type)
	require.NotNil(t, frame.Message)
	assert.Equal(t, KindBroadcast, frame.Message.Kind)
	assert.Equal(t, "cheer", frame.Message.Event)
	assert.JSONEq(t, `{"msg":"well done"}`, string(frame.Message.Payload))
}

func TestWsMalformedFrames(t *testing.T) {
	h := newTestHub(t)
	conn := dialClient(t, h, nil, Identity{UserID: 1, Role: "admin"})

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame.Type)
	assert.Equal(t, "malformed frame", frame.Error)

	raw, _ := json.Marshal(clientFrame{Type: "track", Ref: "nope"})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
	assert.Equal(t, "error", readFrame(t, conn).Type)

	require.NoError(t, conn.WriteJSON(clientFrame{Type: "subscribe", Ref: "empty"}))
	assert.Equal(t, "error", readFrame(t, conn).Type)

	require.NoError(t, conn.WriteJSON(clientFrame{Type: "dance", Ref: "r"}))
	assert.Equal(t, "error", readFrame(t, conn).Type)
}

func TestWsDisconnectSweepsChannels(t *testing.T) {
	h := newTestHub(t)
	conn := dialClient(t, h, nil, Identity{UserID: 1, Role: "admin"})

	require.NoError(t, conn.WriteJSON(clientFrame{
		Type:    "subscribe",
		Ref:     "all",
		Changes: []ChangeSpec{{Table: "notifications"}},
	}))
	waitSubscribed(t, conn, "all")
	assert.Equal(t, 1, h.Len())

	conn.Close()
	require.Eventually(t, func() bool { return h.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWsRevokedLinkStopsStream(t *testing.T) {
	h := newTestHub(t)
	link := &revocableLink{doctor: 4, patient: 9}
	conn := dialClient(t, h, link, Identity{UserID: 4, Role: "doctor"})

	require.NoError(t, conn.WriteJSON(clientFrame{
		Type:    "subscribe",
		Ref:     "patient",
		Changes: []ChangeSpec{{Table: "activity_attempts", Filter: "student_id=eq.9"}},
	}))
	waitSubscribed(t, conn, "patient")

	require.NoError(t, h.PublishChange(context.Background(), "activity_attempts", EventUpdate,
		map[string]interface{}{"id": 1, "student_id": 9, "percentage": 80}, nil))
	frame := readFrame(t, conn)
	require.Equal(t, "message", frame.Type)
	assert.EqualValues(t, 80, frame.Message.Record["percentage"])

	link.revoked.Store(true)
	require.NoError(t, h.PublishChange(context.Background(), "activity_attempts", EventUpdate,
		map[string]interface{}{"id": 1, "student_id": 9, "percentage": 100}, nil))

	frame = readFrame(t, conn)
	assert.Equal(t, "error", frame.Type)
	assert.Equal(t, "patient", frame.Ref)
	assert.Nil(t, frame.Message)

	frame = readFrame(t, conn)
	assert.Equal(t, "status", frame.Type)
	assert.Equal(t, StateUnsubscribed, frame.Status)
	require.Eventually(t, func() bool { return h.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}
