package models

import (
	"time"

	"github.com/google/uuid"
)

// LoginOutcome 单次登录尝试的结果分类
type LoginOutcome string

const (
	OutcomeSuccess       LoginOutcome = "success"        // 登录成功,Cookie已保存
	OutcomeCaptchaFailed LoginOutcome = "captcha_failed" // 验证码识别失败
	OutcomeFormFailed    LoginOutcome = "form_failed"    // 表单元素缺失或提交后被拒绝
	OutcomeTimeout       LoginOutcome = "timeout"        // 元素等待或网络超时
	OutcomeUnknown       LoginOutcome = "unknown"        // 其它异常
)

// LoginAttempt 一次登录尝试的记录
// 每次尝试创建一个,保存Cookie或重试耗尽后丢弃
type LoginAttempt struct {
	ID           string            `json:"id"`
	TargetURL    string            `json:"target_url"`
	Username     string            `json:"username"`
	CaptchaImage string            `json:"captcha_image,omitempty"` // 验证码截图路径
	CaptchaText  string            `json:"captcha_text,omitempty"`
	SolverID     string            `json:"solver_id,omitempty"` // 打码平台返回的pic_id
	Outcome      LoginOutcome      `json:"outcome"`
	Cookies      map[string]string `json:"-"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

// NewLoginAttempt 创建登录尝试
func NewLoginAttempt(targetURL, username string) *LoginAttempt {
	return &LoginAttempt{
		ID:        uuid.NewString(),
		TargetURL: targetURL,
		Username:  username,
		Outcome:   OutcomeUnknown,
		StartedAt: time.Now(),
	}
}

// Succeeded 是否登录成功
func (a *LoginAttempt) Succeeded() bool {
	return a.Outcome == OutcomeSuccess
}

// CrawlStats 爬取统计
type CrawlStats struct {
	Requests       int     `json:"requests"`         // 已下载请求数
	RootPages      int     `json:"root_pages"`       // 首页数
	SubjectPages   int     `json:"subject_pages"`    // 考试类别页
	ExamPointPages int     `json:"exam_point_pages"` // 考点页
	JSONPayloads   int     `json:"json_payloads"`    // 题目接口响应
	Records        int     `json:"records"`          // 产出题目数
	Skipped        int     `json:"skipped"`          // 结构异常被丢弃的条目
	Duplicates     int     `json:"duplicates"`       // 指纹重复被丢弃的请求
	Retries        int     `json:"retries"`          // 重试次数
	FailedRequests int     `json:"failed_requests"`  // 最终失败的请求
	Duration       float64 `json:"duration"`         // 总耗时(秒)
}
