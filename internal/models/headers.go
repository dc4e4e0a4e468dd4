package models

import (
	"fmt"
	"net/http"
	"strings"
)

// CliHeaders 命令行 -H 传入的请求头,每项形如 "Name: Value"
type CliHeaders []string

// reservedHeaders 由抓取节点逐个请求决定,不接受命令行覆盖
var reservedHeaders = map[string]bool{
	"Host":           true,
	"Content-Type":   true,
	"Content-Length": true,
}

// Parse 解析为 http.Header,同名头部保留多个值
func (ch CliHeaders) Parse() (http.Header, error) {
	out := make(http.Header, len(ch))
	for i, raw := range ch {
		name, value, ok := strings.Cut(raw, ":")
		if !ok {
			return nil, fmt.Errorf("第%d个 -H 参数缺少冒号: %q", i+1, raw)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("第%d个 -H 参数缺少头部名称", i+1)
		}
		name = http.CanonicalHeaderKey(name)
		if reservedHeaders[name] {
			return nil, fmt.Errorf("%s 由请求节点设置,不能通过 -H 指定", name)
		}
		out.Add(name, strings.TrimSpace(value))
	}
	return out, nil
}

// HeaderProvider 下载器使用的公共请求头来源
type HeaderProvider interface {
	GetHeaders() http.Header
}
