package store

import (
	"context"
	"fmt"

	"github.com/RecoveryAshes/WxSpider/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisList Redis LIST,写入用RPUSH,读取用LLEN + LRANGE
type RedisList struct {
	rdb *redis.Client
	key string
}

// NewRedisList 创建Redis列表
func NewRedisList(rdb *redis.Client, key string) *RedisList {
	return &RedisList{rdb: rdb, key: key}
}

// Key 列表key
func (l *RedisList) Key() string {
	return l.key
}

// Append 追加题目记录
func (l *RedisList) Append(ctx context.Context, records ...*models.QuestionRecord) error {
	if len(records) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(records))
	for _, r := range records {
		data, err := r.ToJSON()
		if err != nil {
			return fmt.Errorf("序列化题目失败: %w", err)
		}
		values = append(values, data)
	}

	if err := l.rdb.RPush(ctx, l.key, values...).Err(); err != nil {
		return fmt.Errorf("写入 %s 失败: %w", l.key, err)
	}
	return nil
}

// Len LLEN
func (l *RedisList) Len(ctx context.Context) (int64, error) {
	n, err := l.rdb.LLen(ctx, l.key).Result()
	if err != nil {
		return 0, fmt.Errorf("读取 %s 长度失败: %w", l.key, err)
	}
	return n, nil
}

// Range LRANGE
func (l *RedisList) Range(ctx context.Context, start, stop int64) ([]string, error) {
	return l.rdb.LRange(ctx, l.key, start, stop).Result()
}
