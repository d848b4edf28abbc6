package realtime

import (
	"fmt"
	"learnbridge_backend/internal/model"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newFeedDB(t *testing.T, h *Hub) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&model.Notification{}, &model.User{}))
	require.NoError(t, db.Use(NewChangeFeed(h)))
	return db
}

func TestChangeFeedPublishesRowChanges(t *testing.T) {
	h := newTestHub(t)
	db := newFeedDB(t, h)

	c, err := h.Channel("inbox").OnChanges("notifications", EventAll, "recipient_user_id=eq.5")
	require.NoError(t, err)
	subscribed(t, c)

	n := &model.Notification{RecipientUserID: 5, Title: "Great job", Type: model.NotificationInfo}
	require.NoError(t, db.Create(n).Error)

	msg := receive(t, c)
	assert.Equal(t, EventInsert, msg.Event)
	assert.Equal(t, "notifications", msg.Table)
	assert.Equal(t, "Great job", msg.Record["title"])
	assert.Equal(t, float64(n.ID), msg.Record["id"])
	assert.Equal(t, false, msg.Record["read"])

	n.Read = true
	require.NoError(t, db.Save(n).Error)
	msg = receive(t, c)
	assert.Equal(t, EventUpdate, msg.Event)
	assert.Equal(t, true, msg.Record["read"])

	require.NoError(t, db.Delete(n).Error)
	msg = receive(t, c)
	assert.Equal(t, EventDelete, msg.Event)
	assert.Nil(t, msg.Record)
	assert.Equal(t, float64(n.ID), msg.Old["id"])
}

func TestChangeFeedSkipsOthers(t *testing.T) {
	h := newTestHub(t)
	db := newFeedDB(t, h)

	c, err := h.Channel("all").OnChanges(EventAll, EventAll, "")
	require.NoError(t, err)
	subscribed(t, c)

	// 未监听的表
	require.NoError(t, db.Create(&model.User{Name: "Ada", Email: "ada@example.com", Role: model.Child}).Error)
	assertEmpty(t, c)

	require.NoError(t, db.Create(&model.Notification{RecipientUserID: 9, Title: "a"}).Error)
	assert.Equal(t, EventInsert, receive(t, c).Event)

	// 按条件批量删除没有主键，不产生事件
	require.NoError(t, db.Where("recipient_user_id = ?", 9).Delete(&model.Notification{}).Error)
	assertEmpty(t, c)

	// 未匹配到行的更新不产生事件
	require.NoError(t, db.Model(&model.Notification{}).Where("id = ?", 999).Update("read", true).Error)
	assertEmpty(t, c)
}

func TestChangeFeedBatchInsert(t *testing.T) {
	h := newTestHub(t)
	db := newFeedDB(t, h)

	c, err := h.Channel("batch").OnChanges("notifications", EventInsert, "")
	require.NoError(t, err)
	subscribed(t, c)

	batch := []model.Notification{
		{RecipientUserID: 1, Title: "one"},
		{RecipientUserID: 2, Title: "two"},
	}
	require.NoError(t, db.Create(&batch).Error)

	first, second := receive(t, c), receive(t, c)
	assert.Equal(t, "one", first.Record["title"])
	assert.Equal(t, "two", second.Record["title"])
}
