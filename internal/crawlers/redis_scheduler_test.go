package crawlers

import (
	"context"
	"errors"
	"testing"

	"github.com/RecoveryAshes/WxSpider/internal/models"
	"github.com/redis/go-redis/v9"
)

// fakePopper 按顺序出队的内存替身
type fakePopper struct {
	members   []interface{}
	startURLs []string
	zpops     int
}

func (f *fakePopper) ZPopMin(_ context.Context, _ string, _ ...int64) *redis.ZSliceCmd {
	f.zpops++
	if len(f.members) == 0 {
		return redis.NewZSliceCmdResult(nil, nil)
	}
	m := f.members[0]
	f.members = f.members[1:]
	return redis.NewZSliceCmdResult([]redis.Z{{Member: m}}, nil)
}

func (f *fakePopper) LPop(_ context.Context, _ string) *redis.StringCmd {
	if len(f.startURLs) == 0 {
		return redis.NewStringResult("", redis.Nil)
	}
	u := f.startURLs[0]
	f.startURLs = f.startURLs[1:]
	return redis.NewStringResult(u, nil)
}

func TestRedisScheduler_NextSkipsCorruptMembers(t *testing.T) {
	valid := models.NewGetNode("https://ks.wangxiao.cn/exampoint/list?sign=jz1", models.StageExamPointPage, models.PriorityCategory, models.NodeMeta{})
	data, err := valid.ToJSON()
	if err != nil {
		t.Fatal(err)
	}

	const corrupt = 5000
	members := make([]interface{}, 0, corrupt+2)
	for i := 0; i < corrupt; i++ {
		members = append(members, "{不是JSON")
	}
	members = append(members, 42, string(data))

	fake := &fakePopper{members: members, startURLs: []string{"https://ks.wangxiao.cn/"}}
	s := &RedisScheduler{queue: fake, keys: QueueKeys{Requests: "q:requests", StartURLs: "q:url"}}
	ctx := context.Background()

	t.Run("跳过损坏成员取到有效节点", func(t *testing.T) {
		node, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if node.URL != valid.URL || node.Stage != models.StageExamPointPage {
			t.Errorf("节点错误: %+v", node)
		}
		if fake.zpops != corrupt+2 {
			t.Errorf("出队次数 = %d, 期望 %d", fake.zpops, corrupt+2)
		}
	})

	t.Run("请求队列空时取起始URL", func(t *testing.T) {
		node, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if node.Stage != models.StageCategoryPage || !node.DontFilter {
			t.Errorf("起始节点错误: %+v", node)
		}
	})

	t.Run("全部取完返回ErrQueueEmpty", func(t *testing.T) {
		if _, err := s.Next(ctx); !errors.Is(err, ErrQueueEmpty) {
			t.Errorf("期望ErrQueueEmpty, 实际 %v", err)
		}
	})

	t.Run("ctx取消时停止", func(t *testing.T) {
		fake.members = []interface{}{"{坏", "{坏"}
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := s.Next(cctx); !errors.Is(err, context.Canceled) {
			t.Errorf("期望context.Canceled, 实际 %v", err)
		}
	})
}
