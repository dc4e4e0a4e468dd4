package models

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Stage 响应阶段,决定响应交给哪个解析函数
type Stage string

const (
	StageCategoryPage  Stage = "category"   // 首页,提取考试大类
	StageSubjectPage   Stage = "subject"    // 考试大类页,提取科目筛选链接
	StageExamPointPage Stage = "exam_point" // 科目页,章节/考点树
	StageJSONPayload   Stage = "json"       // 题目接口JSON
)

// Valid 检查阶段取值
func (s Stage) Valid() bool {
	switch s {
	case StageCategoryPage, StageSubjectPage, StageExamPointPage, StageJSONPayload:
		return true
	}
	return false
}

// 调度优先级: 数值越大越先出队
const (
	PriorityCategory  = 0
	PrioritySubject   = -10
	PriorityExamPoint = -1
	PriorityLeaf      = 200
)

// Lineage 从根到叶子的分类名称序列
type Lineage []string

// Append 返回追加名称后的新Lineage,不修改原切片
func (l Lineage) Append(names ...string) Lineage {
	out := make(Lineage, 0, len(l)+len(names))
	out = append(out, l...)
	return append(out, names...)
}

func (l Lineage) String() string {
	return strings.Join(l, " -> ")
}

// NodeMeta 随请求传递的上下文
type NodeMeta struct {
	FirstTitle  string  `json:"first_title,omitempty"`
	SecondTitle string  `json:"second_title,omitempty"`
	Path        Lineage `json:"path,omitempty"` // 叶子请求携带完整路径
}

// CrawlNode 一个待处理的抓取单元
// 由调度器持久化,进程重启后继续
type CrawlNode struct {
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Body       string            `json:"body,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Priority   int               `json:"priority"`
	Stage      Stage             `json:"stage"`
	Meta       NodeMeta          `json:"meta"`
	WithCookie bool              `json:"with_cookie,omitempty"` // 附带登录Cookie
	RetryTimes int               `json:"retry_times,omitempty"`
	DontFilter bool              `json:"dont_filter,omitempty"` // 跳过指纹去重(重试时使用)
}

// NewGetNode 创建GET请求节点
func NewGetNode(rawURL string, stage Stage, priority int, meta NodeMeta) *CrawlNode {
	return &CrawlNode{
		URL:      rawURL,
		Method:   "GET",
		Priority: priority,
		Stage:    stage,
		Meta:     meta,
	}
}

// Validate 校验节点
func (n *CrawlNode) Validate() error {
	if err := checkURL(n.URL); err != nil {
		return err
	}
	if n.Method != "GET" && n.Method != "POST" {
		return fmt.Errorf("不支持的请求方法: %s", n.Method)
	}
	if !n.Stage.Valid() {
		return fmt.Errorf("未知的响应阶段: %q", n.Stage)
	}
	return nil
}

// Retry 生成重试节点: 重试次数+1,跳过去重
func (n *CrawlNode) Retry() *CrawlNode {
	cp := *n
	cp.RetryTimes++
	cp.DontFilter = true
	return &cp
}

// ToJSON 序列化为JSON
func (n *CrawlNode) ToJSON() ([]byte, error) {
	return json.Marshal(n)
}

// DecodeCrawlNode 从JSON反序列化节点
func DecodeCrawlNode(data []byte) (*CrawlNode, error) {
	var n CrawlNode
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("解析抓取节点失败: %w", err)
	}
	return &n, nil
}

// checkURL 节点URL必须是带主机名的http(s)绝对地址
func checkURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return fmt.Errorf("无效的URL %q: %w", raw, err)
	}
	switch {
	case u.Scheme != "http" && u.Scheme != "https":
		return fmt.Errorf("URL协议必须是http或https: %q", raw)
	case u.Host == "":
		return fmt.Errorf("URL缺少主机名: %q", raw)
	}
	return nil
}
