package realtime

import (
	"context"
	"learnbridge_backend/pkg/logger"
	"reflect"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// WatchedTables 产生表变更事件的表
var WatchedTables = []string{
	"activity_attempts",
	"activity_logs",
	"achievements",
	"notifications",
	"doctor_patient_links",
}

// ChangeFeed GORM 插件：写入成功后把行数据发布为表变更事件。
// 按条件批量更新或删除（无主键）不产生事件
type ChangeFeed struct {
	hub    *Hub
	tables map[string]bool
}

func NewChangeFeed(hub *Hub, tables ...string) *ChangeFeed {
	if len(tables) == 0 {
		tables = WatchedTables
	}
	set := make(map[string]bool, len(tables))
	for _, t := range tables {
		set[t] = true
	}
	return &ChangeFeed{hub: hub, tables: set}
}

func (f *ChangeFeed) Name() string {
	return "realtime:changefeed"
}

func (f *ChangeFeed) Initialize(db *gorm.DB) error {
	if err := db.Callback().Create().After("gorm:after_create").Register("realtime:after_create", f.publish(EventInsert)); err != nil {
		return err
	}
	if err := db.Callback().Update().After("gorm:after_update").Register("realtime:after_update", f.publish(EventUpdate)); err != nil {
		return err
	}
	return db.Callback().Delete().After("gorm:after_delete").Register("realtime:after_delete", f.publish(EventDelete))
}

func (f *ChangeFeed) publish(event string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		stmt := db.Statement
		if db.Error != nil || db.RowsAffected == 0 || stmt.Schema == nil || !f.tables[stmt.Table] {
			return
		}
		ctx := stmt.Context
		if ctx == nil {
			ctx = context.Background()
		}

		for _, row := range rowsOf(ctx, stmt.Schema, stmt.ReflectValue) {
			// 没有主键的批量更新、删除无法还原行数据，跳过
			if isZeroKey(stmt.Schema, row) {
				continue
			}
			var err error
			if event == EventDelete {
				err = f.hub.PublishChange(ctx, stmt.Table, event, nil, row)
			} else {
				err = f.hub.PublishChange(ctx, stmt.Table, event, row, nil)
			}
			if err != nil {
				logger.Log.Warn("Failed to publish table change",
					zap.String("table", stmt.Table),
					zap.String("event", event),
					zap.Error(err))
			}
		}
	}
}

func rowsOf(ctx context.Context, s *schema.Schema, rv reflect.Value) []map[string]interface{} {
	rv = reflect.Indirect(rv)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		rows := make([]map[string]interface{}, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elem := reflect.Indirect(rv.Index(i))
			if elem.Kind() == reflect.Struct {
				rows = append(rows, rowOf(ctx, s, elem))
			}
		}
		return rows
	case reflect.Struct:
		return []map[string]interface{}{rowOf(ctx, s, rv)}
	}
	return nil
}

func rowOf(ctx context.Context, s *schema.Schema, rv reflect.Value) map[string]interface{} {
	row := make(map[string]interface{}, len(s.Fields))
	for _, field := range s.Fields {
		if field.DBName == "" {
			continue
		}
		// 取原始字段值，序列化字段（serializer:json）保持结构体形态
		row[field.DBName] = field.ReflectValueOf(ctx, rv).Interface()
	}
	return row
}

func isZeroKey(s *schema.Schema, row map[string]interface{}) bool {
	if s.PrioritizedPrimaryField == nil {
		return true
	}
	v, ok := row[s.PrioritizedPrimaryField.DBName]
	if !ok || v == nil {
		return true
	}
	return reflect.ValueOf(v).IsZero()
}
