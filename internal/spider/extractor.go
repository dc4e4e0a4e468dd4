// Package spider 题库页面解析: 首页 -> 考试大类 -> 科目 -> 章节考点树 -> 题目JSON
package spider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/WxSpider/internal/crawlers"
	"github.com/RecoveryAshes/WxSpider/internal/models"
	"github.com/RecoveryAshes/WxSpider/internal/utils"
	"github.com/rs/zerolog"
)

const (
	// DefaultAllowedDomain 默认抓取域名
	DefaultAllowedDomain = "ks.wangxiao.cn"

	// DefaultPostURL 题目列表接口
	DefaultPostURL = "https://ks.wangxiao.cn/practice/listQuestions"
)

// 页面选择器
const (
	categorySelector = `#banner ul > li > div[class="send-title"] > a`
	subjectSelector  = `body div[class="filter-item"] > a`
)

// 题目接口固定请求头
var leafHeaders = map[string]string{
	"x-requested-with": "XMLHttpRequest",
	"accept":           "application/json, text/javascript, */*; q=0.01",
	"Content-Type":     "application/json; charset=UTF-8",
}

// Options 解析器配置
type Options struct {
	AllowedDomain string
	PostURL       string
}

// Result 一个响应的解析结果
type Result struct {
	Nodes   []*models.CrawlNode      // 后续请求
	Records []*models.QuestionRecord // 题目
	Skipped []string                 // 被丢弃条目的原因
}

// Extractor 按响应阶段分发解析
// 不持有可变状态,可被多个worker同时使用
type Extractor struct {
	opts  Options
	links *crawlers.LinkExtractor
	log   zerolog.Logger
}

// NewExtractor 创建解析器
func NewExtractor(opts Options) *Extractor {
	if opts.AllowedDomain == "" {
		opts.AllowedDomain = DefaultAllowedDomain
	}
	if opts.PostURL == "" {
		opts.PostURL = DefaultPostURL
	}
	return &Extractor{
		opts:  opts,
		links: crawlers.NewLinkExtractor(opts.AllowedDomain),
		log:   utils.With("spider"),
	}
}

// Handle 根据节点阶段调用对应的解析函数
func (e *Extractor) Handle(node *models.CrawlNode, body []byte) (*Result, error) {
	switch node.Stage {
	case models.StageCategoryPage:
		doc, err := parseHTML(body)
		if err != nil {
			return nil, err
		}
		return &Result{Nodes: e.ParseRoot(node, doc)}, nil

	case models.StageSubjectPage:
		doc, err := parseHTML(body)
		if err != nil {
			return nil, err
		}
		return &Result{Nodes: e.ParseSubject(node, doc)}, nil

	case models.StageExamPointPage:
		doc, err := parseHTML(body)
		if err != nil {
			return nil, err
		}
		nodes, skipped := e.ParseExamPoints(node, doc)
		return &Result{Nodes: nodes, Skipped: skipped}, nil

	case models.StageJSONPayload:
		records, skipped, err := e.ParseQuestions(node, body)
		if err != nil {
			return nil, err
		}
		return &Result{Records: records, Skipped: skipped}, nil

	default:
		return nil, fmt.Errorf("未知的响应阶段: %q", node.Stage)
	}
}

func parseHTML(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败: %w", err)
	}
	return doc, nil
}

// ParseRoot 首页: 提取考试大类链接,TestPaper 换成 exampoint
func (e *Extractor) ParseRoot(node *models.CrawlNode, doc *goquery.Document) []*models.CrawlNode {
	e.log.Info().Str("url", node.URL).Msg("开始解析-->获取题目类型url")

	links := e.links.Extract(doc.Find(categorySelector).Nodes, node.URL)
	nodes := make([]*models.CrawlNode, 0, len(links))
	for _, link := range links {
		meta := node.Meta
		meta.FirstTitle = link.Text
		url := strings.ReplaceAll(link.URL, "TestPaper", "exampoint")
		nodes = append(nodes, models.NewGetNode(url, models.StageSubjectPage, models.PrioritySubject, meta))
	}
	return nodes
}

// ParseSubject 考试大类页: 提取科目筛选链接
func (e *Extractor) ParseSubject(node *models.CrawlNode, doc *goquery.Document) []*models.CrawlNode {
	e.log.Info().Str("first_title", node.Meta.FirstTitle).Msg("第二层url解析开始")

	links := e.links.Extract(doc.Find(subjectSelector).Nodes, node.URL)
	nodes := make([]*models.CrawlNode, 0, len(links))
	for _, link := range links {
		meta := node.Meta
		meta.SecondTitle = link.Text
		nodes = append(nodes, models.NewGetNode(link.URL, models.StageExamPointPage, models.PriorityExamPoint, meta))
	}
	return nodes
}

// ParseExamPoints 科目页: 建立章节考点树,每个叶子生成一个题目接口POST请求
func (e *Extractor) ParseExamPoints(node *models.CrawlNode, doc *goquery.Document) ([]*models.CrawlNode, []string) {
	e.log.Info().
		Str("first_title", node.Meta.FirstTitle).
		Str("second_title", node.Meta.SecondTitle).
		Msg("开始获取题目相关信息")

	tree := BuildTree(doc)
	leaves := tree.Lineages(node.Meta.FirstTitle, node.Meta.SecondTitle)

	var (
		nodes   []*models.CrawlNode
		skipped []string
	)
	for _, leaf := range leaves {
		if err := leaf.Params.validate(); err != nil {
			reason := fmt.Sprintf("考点《%s》参数不完整: %v", strings.Join(leaf.Path, "/"), err)
			e.log.Warn().Msg(reason)
			skipped = append(skipped, reason)
			continue
		}

		post, err := e.leafNode(node.Meta, leaf)
		if err != nil {
			skipped = append(skipped, err.Error())
			continue
		}
		nodes = append(nodes, post)
	}
	return nodes, skipped
}

// listQuestionsBody 题目接口请求体,字段顺序与站点前端一致
type listQuestionsBody struct {
	ExamPointType string `json:"examPointType"`
	PracticeType  string `json:"practiceType"`
	QuestionType  string `json:"questionType"`
	Sign          string `json:"sign"`
	Subsign       string `json:"subsign"`
	Top           string `json:"top"`
}

// leafNode 构造叶子POST节点
func (e *Extractor) leafNode(meta models.NodeMeta, leaf LeafLineage) (*models.CrawlNode, error) {
	body, err := json.Marshal(listQuestionsBody{
		PracticeType: "2",
		Sign:         leaf.Params.Sign,
		Subsign:      leaf.Params.Subsign,
		Top:          leaf.Params.Top,
	})
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	headers := make(map[string]string, len(leafHeaders))
	for k, v := range leafHeaders {
		headers[k] = v
	}

	meta.Path = leaf.Path
	return &models.CrawlNode{
		URL:        e.opts.PostURL,
		Method:     http.MethodPost,
		Body:       string(body),
		Headers:    headers,
		Priority:   models.PriorityLeaf,
		Stage:      models.StageJSONPayload,
		Meta:       meta,
		WithCookie: true,
	}, nil
}
