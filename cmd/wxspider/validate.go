package main

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// exportTargets 支持的导出目标
var exportTargets = []string{"md", "sql", "mongo", "csv"}

// ValidateCrawlFlags 验证抓取参数,零值表示使用配置
func ValidateCrawlFlags(queue string, workers int, idle time.Duration) error {
	// 验证队列类型
	if queue != "" && queue != "redis" && queue != "memory" {
		return fmt.Errorf("无效的队列类型: %s (有效值: redis, memory)", queue)
	}

	// 验证并发数
	if workers < 0 || workers > 256 {
		return fmt.Errorf("worker数必须在1-256之间,当前值: %d", workers)
	}

	if idle < 0 {
		return fmt.Errorf("空闲超时不能为负数,当前值: %v", idle)
	}
	return nil
}

// ValidateExportTarget 验证导出目标
func ValidateExportTarget(target string) error {
	for _, t := range exportTargets {
		if t == target {
			return nil
		}
	}
	return fmt.Errorf("无效的导出目标: %s (有效值: md, sql, mongo, csv)", target)
}

// ValidateCronSpec 验证cron表达式 (支持 @every 等描述符)
func ValidateCronSpec(spec string) error {
	if spec == "" {
		return fmt.Errorf("cron表达式不能为空")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("无效的cron表达式 %q: %w", spec, err)
	}
	return nil
}
