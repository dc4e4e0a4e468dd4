package crawlers

import (
	"container/heap"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/RecoveryAshes/WxSpider/internal/models"
)

var (
	// ErrQueueEmpty 当前没有待处理节点
	ErrQueueEmpty = errors.New("队列为空")

	// ErrQueueClosed 队列已关闭
	ErrQueueClosed = errors.New("队列已关闭")
)

// Scheduler 抓取队列
// 高优先级先出队,同优先级先进先出;指纹相同的节点只入队一次
type Scheduler interface {
	// Enqueue 入队,重复节点返回false
	Enqueue(ctx context.Context, node *models.CrawlNode) (bool, error)

	// Next 取出下一个节点,没有时返回 ErrQueueEmpty,不阻塞
	Next(ctx context.Context) (*models.CrawlNode, error)

	// Len 待处理节点数 (含起始URL)
	Len(ctx context.Context) (int64, error)

	// Seed 写入起始URL;force为false且已有起始URL时跳过
	Seed(ctx context.Context, urls []string, force bool) (int64, error)

	Close() error
}

// Fingerprint 计算节点指纹: 方法 + 规范化URL + 规范化请求体
func Fingerprint(node *models.CrawlNode) string {
	h := sha1.New()
	h.Write([]byte(strings.ToUpper(node.Method)))
	h.Write([]byte{0})
	h.Write([]byte(canonicalURL(node.URL)))
	h.Write([]byte{0})
	h.Write([]byte(normalizeBody(node.Body)))
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalURL 去掉fragment,查询参数按key排序,host小写
func canonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = u.Query().Encode()
	return u.String()
}

// normalizeBody JSON请求体重新编码使key有序,其它原样返回
func normalizeBody(body string) string {
	if body == "" {
		return ""
	}
	var v interface{}
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return body
	}
	out, err := json.Marshal(v)
	if err != nil {
		return body
	}
	return string(out)
}

// StartNode 起始URL对应的节点,不参与去重
func StartNode(rawURL string) *models.CrawlNode {
	node := models.NewGetNode(rawURL, models.StageCategoryPage, models.PriorityCategory, models.NodeMeta{})
	node.DontFilter = true
	return node
}

// queueItem 堆元素
type queueItem struct {
	node *models.CrawlNode
	seq  uint64
}

// nodeHeap 按优先级降序、序号升序
type nodeHeap []queueItem

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].node.Priority != h[j].node.Priority {
		return h[i].node.Priority > h[j].node.Priority
	}
	return h[i].seq < h[j].seq
}
func (h nodeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x interface{}) { *h = append(*h, x.(queueItem)) }
func (h *nodeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// MemoryScheduler 进程内队列,用于单进程运行和测试
// 进程退出后队列内容丢失
type MemoryScheduler struct {
	mu        sync.Mutex
	pending   nodeHeap
	seen      map[string]struct{}
	startURLs []string
	seq       uint64
	closed    bool
}

// NewMemoryScheduler 创建进程内队列
func NewMemoryScheduler() *MemoryScheduler {
	return &MemoryScheduler{
		seen: make(map[string]struct{}),
	}
}

// Enqueue 入队
func (q *MemoryScheduler) Enqueue(ctx context.Context, node *models.CrawlNode) (bool, error) {
	if err := node.Validate(); err != nil {
		return false, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false, ErrQueueClosed
	}

	if !node.DontFilter {
		fp := Fingerprint(node)
		if _, ok := q.seen[fp]; ok {
			return false, nil
		}
		q.seen[fp] = struct{}{}
	}

	q.seq++
	heap.Push(&q.pending, queueItem{node: node, seq: q.seq})
	return true, nil
}

// Next 出队;队列空时取起始URL
func (q *MemoryScheduler) Next(ctx context.Context) (*models.CrawlNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	if q.pending.Len() > 0 {
		item := heap.Pop(&q.pending).(queueItem)
		return item.node, nil
	}

	if len(q.startURLs) > 0 {
		u := q.startURLs[0]
		q.startURLs = q.startURLs[1:]
		return StartNode(u), nil
	}

	return nil, ErrQueueEmpty
}

// Len 待处理数量
func (q *MemoryScheduler) Len(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(q.pending.Len() + len(q.startURLs)), nil
}

// Seed 写入起始URL
func (q *MemoryScheduler) Seed(ctx context.Context, urls []string, force bool) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, ErrQueueClosed
	}
	if !force && len(q.startURLs) > 0 {
		return 0, nil
	}
	q.startURLs = append(q.startURLs, urls...)
	return int64(len(urls)), nil
}

// Close 关闭队列
func (q *MemoryScheduler) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
