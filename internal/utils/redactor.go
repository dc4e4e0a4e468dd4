package utils

import (
	"net/http"
	"sort"
	"strings"
)

var (
	// SensitiveKeywords 敏感字段关键字 (用于脱敏)
	SensitiveKeywords = []string{
		"authorization",
		"token",
		"secret",
		"password",
		"pass2",
		"cookie",
		"session",
	}
)

// Redactor 脱敏器
// 日志里出现的密码、Cookie值都要经过它
type Redactor struct {
	sensitiveKeywords []string
}

// NewRedactor 创建脱敏器
func NewRedactor() *Redactor {
	return &Redactor{
		sensitiveKeywords: SensitiveKeywords,
	}
}

// IsSensitive 根据名称关键字判断是否敏感
func (r *Redactor) IsSensitive(name string) bool {
	nameLower := strings.ToLower(name)
	for _, keyword := range r.sensitiveKeywords {
		if strings.Contains(nameLower, keyword) {
			return true
		}
	}
	return false
}

// Mask 脱敏单个值
// 长值保留前后各2位,短值完全隐藏
func Mask(value string) string {
	if strings.HasPrefix(value, "Bearer ") {
		return "Bearer ***"
	}
	runes := []rune(value)
	if len(runes) > 8 {
		return string(runes[:2]) + "***" + string(runes[len(runes)-2:])
	}
	if value == "" {
		return ""
	}
	return "***"
}

// RedactValue 名称敏感时脱敏
func (r *Redactor) RedactValue(name, value string) string {
	if !r.IsSensitive(name) {
		return value
	}
	return Mask(value)
}

// RedactHeaders 脱敏http.Header,返回安全的字符串map (用于日志)
func (r *Redactor) RedactHeaders(headers http.Header) map[string]string {
	result := make(map[string]string)
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		result[name] = r.RedactValue(name, values[0])
	}
	return result
}

// RedactCookies Cookie值全部脱敏,只保留名称,按名称排序
// 格式: "name1=va***e1, name2=***"
func (r *Redactor) RedactCookies(cookies map[string]string) string {
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+Mask(cookies[name]))
	}
	return strings.Join(parts, ", ")
}
