package crawlers

import (
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
)

// Link 页面中的一个锚点
type Link struct {
	Text string
	URL  string
}

// LinkExtractor 从已选中的锚点节点提取绝对链接
type LinkExtractor struct {
	// 允许的主机名,为空时不限制
	allowedHost string
}

// NewLinkExtractor 创建链接提取器
func NewLinkExtractor(allowedHost string) *LinkExtractor {
	return &LinkExtractor{allowedHost: allowedHost}
}

// Extract 解析节点的href和文本,相对地址按baseURL补全
// 没有href、协议不支持或跨域的节点被跳过
func (e *LinkExtractor) Extract(nodes []*html.Node, baseURL string) []Link {
	base, err := url.Parse(baseURL)
	if err != nil {
		log.Warn().Err(err).Str("url", baseURL).Msg("解析baseURL失败")
		return nil
	}

	links := make([]Link, 0, len(nodes))
	for _, n := range nodes {
		href, ok := attr(n, "href")
		if !ok {
			continue
		}

		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)

		if follow, reason := e.ShouldFollowLink(abs); !follow {
			log.Debug().Str("url", abs.String()).Msg(reason)
			continue
		}

		links = append(links, Link{
			Text: NodeText(n),
			URL:  abs.String(),
		})
	}
	return links
}

// ShouldFollowLink 判断链接是否应该被跟随
func (e *LinkExtractor) ShouldFollowLink(u *url.URL) (bool, string) {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false, "不支持的协议"
	}
	if e.allowedHost != "" && !strings.EqualFold(u.Hostname(), e.allowedHost) {
		return false, "跨域链接已过滤"
	}
	return true, ""
}

// NodeText 拼接节点下全部文本并去掉首尾空白
func NodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
