package core

import (
	"fmt"
	"net/http"

	"github.com/RecoveryAshes/WxSpider/internal/models"
	"github.com/RecoveryAshes/WxSpider/internal/utils"
	"golang.org/x/net/http/httpguts"
)

const (
	// DefaultUserAgent 默认User-Agent
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0.0.0 Safari/537.36"
)

// HeaderManager 管理爬虫请求头
// 实现 models.HeaderProvider 接口
type HeaderManager struct {
	// defaults 系统默认头部 (硬编码)
	defaults http.Header

	// config 来自 spider.headers / spider.user_agent
	config http.Header

	// cli 从命令行参数解析的头部
	cli http.Header

	// redactor 头部脱敏器
	redactor *utils.Redactor
}

// NewHeaderManager 创建头部管理器
// 参数:
//   - spider: 爬虫配置,提供 user_agent 和 headers
//   - cliHeaders: 命令行传递的头部字符串列表
//
// 所有头部在构造时校验,非法名称或值返回错误
func NewHeaderManager(spider SpiderConfig, cliHeaders []string) (*HeaderManager, error) {
	hm := &HeaderManager{
		defaults: getDefaultHeaders(),
		config:   make(http.Header),
		redactor: utils.NewRedactor(),
	}

	if spider.UserAgent != "" {
		hm.config.Set("User-Agent", spider.UserAgent)
	}
	for name, value := range spider.Headers {
		hm.config.Set(name, value)
	}

	cli, err := models.CliHeaders(cliHeaders).Parse()
	if err != nil {
		return nil, err
	}
	hm.cli = cli

	if err := hm.Validate(); err != nil {
		return nil, err
	}

	if len(hm.config)+len(hm.cli) > 0 {
		utils.Debugf("自定义请求头: %v", hm.GetSafeHeaders())
	}

	return hm, nil
}

// getDefaultHeaders 返回系统默认头部
func getDefaultHeaders() http.Header {
	return http.Header{
		"User-Agent":      []string{DefaultUserAgent},
		"Accept":          []string{"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Language": []string{"zh-CN,zh;q=0.9,en;q=0.8"},
		"Accept-Encoding": []string{"gzip, deflate, br"},
	}
}

// Validate 验证所有头部的合法性
// 验证顺序: 默认 → 配置 → 命令行
func (hm *HeaderManager) Validate() error {
	sources := []struct {
		name    string
		headers http.Header
	}{
		{"默认", hm.defaults},
		{"配置文件", hm.config},
		{"命令行", hm.cli},
	}

	for _, src := range sources {
		if err := validateHeaders(src.headers); err != nil {
			utils.Errorf("%s头部验证失败: %v", src.name, err)
			return err
		}
	}
	return nil
}

// validateHeaders 按RFC 7230检查名称和值
func validateHeaders(headers http.Header) error {
	for name, values := range headers {
		if !httpguts.ValidHeaderFieldName(name) {
			return fmt.Errorf("非法头部名称: %q", name)
		}
		for _, value := range values {
			if !httpguts.ValidHeaderFieldValue(value) {
				return fmt.Errorf("头部 %s 的值包含非法字符", name)
			}
		}
	}
	return nil
}

// GetMergedHeaders 按优先级合并头部 (default < config < cli)
func (hm *HeaderManager) GetMergedHeaders() http.Header {
	result := make(http.Header)

	for name, values := range hm.defaults {
		result[name] = values
	}
	for name, values := range hm.config {
		result[name] = values
	}
	for name, values := range hm.cli {
		result[name] = values
	}

	return result
}

// GetSafeHeaders 返回脱敏后的头部 (用于日志)
func (hm *HeaderManager) GetSafeHeaders() map[string]string {
	return hm.redactor.RedactHeaders(hm.GetMergedHeaders())
}

// GetHeaders 实现 HeaderProvider 接口
func (hm *HeaderManager) GetHeaders() http.Header {
	return hm.GetMergedHeaders()
}
