package spider

import (
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/WxSpider/internal/models"
	"golang.org/x/net/html"
)

// NodeKind 章节树节点类型,对应页面上ul的class
type NodeKind string

const (
	KindChapter      NodeKind = "chapter-item"
	KindSection      NodeKind = "section-item"
	KindSectionPoint NodeKind = "section-point-item"
)

// LeafParams 题目接口需要的参数
type LeafParams struct {
	Sign    string
	Subsign string
	Top     string // 题目总数
}

func (p LeafParams) validate() error {
	switch {
	case p.Sign == "":
		return errors.New("缺少data_sign")
	case p.Top == "":
		return errors.New("缺少题目数量")
	}
	return nil
}

// TreeNode 章节树节点
type TreeNode struct {
	Kind     NodeKind
	Name     string
	Params   LeafParams
	Children []*TreeNode
	Parent   *TreeNode
}

// LineageTree 科目页的章节 -> 小节 -> 考点树
type LineageTree struct {
	Roots []*TreeNode
}

// LeafLineage 一个叶子及其完整路径
type LeafLineage struct {
	Path   models.Lineage
	Params LeafParams
}

// BuildTree 从科目页构建章节树
// 按文档顺序遍历,每个章节/小节/考点挂到最近的容器祖先下
func BuildTree(doc *goquery.Document) *LineageTree {
	t := &LineageTree{}
	t.walk(doc.Find("body"), nil)
	return t
}

func (t *LineageTree) walk(s *goquery.Selection, parent *TreeNode) {
	s.Children().Each(func(_ int, c *goquery.Selection) {
		next := parent
		if kind, ok := containerKind(c); ok {
			node := newTreeNode(c, kind)
			if parent == nil {
				t.Roots = append(t.Roots, node)
			} else {
				node.Parent = parent
				parent.Children = append(parent.Children, node)
			}
			next = node
		}
		t.walk(c, next)
	})
}

// containerKind 只认class完全相等的ul
func containerKind(s *goquery.Selection) (NodeKind, bool) {
	if goquery.NodeName(s) != "ul" {
		return "", false
	}
	class, _ := s.Attr("class")
	switch NodeKind(class) {
	case KindChapter, KindSection, KindSectionPoint:
		return NodeKind(class), true
	}
	return "", false
}

// newTreeNode 读取节点名称和接口参数
// 第一个 li.fl 的直接文本为名称,第二个为 "已做/总数",span上带 data_sign/data_subsign
func newTreeNode(s *goquery.Selection, kind NodeKind) *TreeNode {
	items := s.ChildrenFiltered(`li[class="fl"]`)

	node := &TreeNode{
		Kind: kind,
		Name: removeWhitespace(directText(items.Eq(0))),
	}

	if parts := strings.Split(firstText(items.Eq(1)), "/"); len(parts) > 1 {
		node.Params.Top = strings.TrimSpace(parts[1])
	}

	spans := items.ChildrenFiltered("span")
	node.Params.Sign = firstAttr(spans, "data_sign")
	node.Params.Subsign = firstAttr(spans, "data_subsign")
	return node
}

// Lineages 展开所有叶子的路径
// 有考点时: [大类, 科目, 章节..., 小节..., 考点]
// 只有章节时: [科目, 科目, 章节]
func (t *LineageTree) Lineages(firstTitle, secondTitle string) []LeafLineage {
	var leaves []LeafLineage
	t.each(func(n *TreeNode) {
		if n.Kind != KindSectionPoint {
			return
		}
		path := models.Lineage{firstTitle, secondTitle}.Append(n.ancestorNames()...)
		leaves = append(leaves, LeafLineage{Path: path.Append(n.Name), Params: n.Params})
	})
	if len(leaves) > 0 {
		return leaves
	}

	t.each(func(n *TreeNode) {
		if n.Kind != KindChapter {
			return
		}
		leaves = append(leaves, LeafLineage{
			Path:   models.Lineage{secondTitle, secondTitle, n.Name},
			Params: n.Params,
		})
	})
	return leaves
}

// each 先序遍历
func (t *LineageTree) each(fn func(*TreeNode)) {
	var visit func(*TreeNode)
	visit = func(n *TreeNode) {
		fn(n)
		for _, c := range n.Children {
			visit(c)
		}
	}
	for _, r := range t.Roots {
		visit(r)
	}
}

// ancestorNames 从外到内的章节、小节名称
func (n *TreeNode) ancestorNames() []string {
	var names []string
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Kind == KindChapter || p.Kind == KindSection {
			names = append(names, p.Name)
		}
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return names
}

// directText 拼接第一个节点的直接子文本,不含子元素内的文本
func directText(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	var sb strings.Builder
	for c := s.Nodes[0].FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

// firstText 第一个非空直接子文本
func firstText(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	for c := s.Nodes[0].FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode && strings.TrimSpace(c.Data) != "" {
			return c.Data
		}
	}
	return ""
}

func firstAttr(s *goquery.Selection, name string) string {
	var value string
	s.EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if v, ok := el.Attr(name); ok {
			value = v
			return false
		}
		return true
	})
	return value
}

var whitespaceReplacer = strings.NewReplacer(" ", "", "\n", "", "\t", "", "\r", "")

func removeWhitespace(s string) string {
	return whitespaceReplacer.Replace(s)
}
