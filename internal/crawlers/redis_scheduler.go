package crawlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/RecoveryAshes/WxSpider/internal/models"
	"github.com/RecoveryAshes/WxSpider/internal/utils"
	"github.com/redis/go-redis/v9"
)

// QueueKeys Redis中使用的key
type QueueKeys struct {
	StartURLs  string // LIST 起始URL
	Requests   string // ZSET 待处理节点,score为-priority
	Dupefilter string // SET 已入队指纹
	Items      string // LIST 题目记录
}

// QueueStats 各key的长度
type QueueStats struct {
	StartURLs  int64 `json:"start_urls"`
	Requests   int64 `json:"requests"`
	Dupefilter int64 `json:"dupefilter"`
	Items      int64 `json:"items"`
}

// queuePopper Next用到的出队命令
type queuePopper interface {
	ZPopMin(ctx context.Context, key string, count ...int64) *redis.ZSliceCmd
	LPop(ctx context.Context, key string) *redis.StringCmd
}

// RedisScheduler 基于Redis的持久化队列,可被多个进程共享
type RedisScheduler struct {
	rdb   *redis.Client
	queue queuePopper
	keys  QueueKeys
}

// NewRedisScheduler 创建Redis队列
func NewRedisScheduler(rdb *redis.Client, keys QueueKeys) *RedisScheduler {
	return &RedisScheduler{rdb: rdb, queue: rdb, keys: keys}
}

// Enqueue 指纹未见过时写入ZSET
func (s *RedisScheduler) Enqueue(ctx context.Context, node *models.CrawlNode) (bool, error) {
	if err := node.Validate(); err != nil {
		return false, err
	}

	if !node.DontFilter {
		added, err := s.rdb.SAdd(ctx, s.keys.Dupefilter, Fingerprint(node)).Result()
		if err != nil {
			return false, fmt.Errorf("写入去重集合失败: %w", err)
		}
		if added == 0 {
			return false, nil
		}
	}

	data, err := node.ToJSON()
	if err != nil {
		return false, fmt.Errorf("序列化节点失败: %w", err)
	}

	if err := s.rdb.ZAdd(ctx, s.keys.Requests, redis.Z{
		Score:  float64(-node.Priority),
		Member: data,
	}).Err(); err != nil {
		return false, fmt.Errorf("写入请求队列失败: %w", err)
	}
	return true, nil
}

// Next ZPOPMIN取最高优先级节点;请求队列空时LPOP起始URL
// 无法解析的成员直接丢弃,继续取下一个
func (s *RedisScheduler) Next(ctx context.Context) (*models.CrawlNode, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		popped, err := s.queue.ZPopMin(ctx, s.keys.Requests, 1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("读取请求队列失败: %w", err)
		}
		if len(popped) == 0 {
			break
		}

		member, ok := popped[0].Member.(string)
		if !ok {
			utils.Warnf("丢弃类型异常的节点: %T", popped[0].Member)
			continue
		}
		node, err := models.DecodeCrawlNode([]byte(member))
		if err != nil {
			utils.Warnf("丢弃无法解析的节点: %v", err)
			continue
		}
		return node, nil
	}

	startURL, err := s.queue.LPop(ctx, s.keys.StartURLs).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("读取起始URL失败: %w", err)
	}
	return StartNode(startURL), nil
}

// Len 请求队列与起始URL的总数
func (s *RedisScheduler) Len(ctx context.Context) (int64, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return 0, err
	}
	return stats.Requests + stats.StartURLs, nil
}

// Seed 写入起始URL
func (s *RedisScheduler) Seed(ctx context.Context, urls []string, force bool) (int64, error) {
	if len(urls) == 0 {
		return 0, nil
	}

	if !force {
		n, err := s.rdb.LLen(ctx, s.keys.StartURLs).Result()
		if err != nil {
			return 0, fmt.Errorf("读取起始URL数量失败: %w", err)
		}
		if n > 0 {
			utils.Infof("起始URL队列已有 %d 条,跳过写入", n)
			return 0, nil
		}
	}

	values := make([]interface{}, len(urls))
	for i, u := range urls {
		values[i] = u
	}
	if err := s.rdb.RPush(ctx, s.keys.StartURLs, values...).Err(); err != nil {
		return 0, fmt.Errorf("写入起始URL失败: %w", err)
	}
	return int64(len(urls)), nil
}

// Stats 读取各key长度
func (s *RedisScheduler) Stats(ctx context.Context) (QueueStats, error) {
	pipe := s.rdb.Pipeline()
	startURLs := pipe.LLen(ctx, s.keys.StartURLs)
	requests := pipe.ZCard(ctx, s.keys.Requests)
	dupefilter := pipe.SCard(ctx, s.keys.Dupefilter)
	items := pipe.LLen(ctx, s.keys.Items)

	if _, err := pipe.Exec(ctx); err != nil {
		return QueueStats{}, fmt.Errorf("读取队列状态失败: %w", err)
	}

	return QueueStats{
		StartURLs:  startURLs.Val(),
		Requests:   requests.Val(),
		Dupefilter: dupefilter.Val(),
		Items:      items.Val(),
	}, nil
}

// Close 关闭Redis连接
func (s *RedisScheduler) Close() error {
	return s.rdb.Close()
}
