package login

import "strings"

// Decision 提交后的判定结果
type Decision int

const (
	Rejected Decision = iota
	Verified
)

func (d Decision) String() string {
	if d == Verified {
		return "verified"
	}
	return "rejected"
}

// Reason 判定依据
type Reason string

const (
	ReasonFailureText   Reason = "页面包含失败提示"
	ReasonFormPresent   Reason = "登录表单仍在页面上"
	ReasonLeftLoginPage Reason = "已离开登录页"
	ReasonStillLoginURL Reason = "URL仍包含登录关键字"
)

// LoginSnapshot 提交后采集的页面状态
type LoginSnapshot struct {
	URL              string
	FailureTextFound bool
	FormPresent      bool
}

// Classify 按固定顺序判定登录结果,先命中先返回:
// 失败提示 > 表单仍在 > URL不含登录关键字(成功) > 默认失败
func Classify(s LoginSnapshot, loginMarkers []string) (Decision, Reason) {
	if s.FailureTextFound {
		return Rejected, ReasonFailureText
	}
	if s.FormPresent {
		return Rejected, ReasonFormPresent
	}
	if !containsAny(strings.ToLower(s.URL), loginMarkers) {
		return Verified, ReasonLeftLoginPage
	}
	return Rejected, ReasonStillLoginURL
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(s, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
