package models

import (
	"time"

	"github.com/google/uuid"
)

// CrawlReport 爬取报告
type CrawlReport struct {
	// 任务信息
	RunID   string `json:"run_id"`
	Queue   string `json:"queue"` // redis / memory
	Workers int    `json:"workers"`

	// 时间信息
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// 统计信息
	Stats CrawlStats `json:"stats"`
}

// NewCrawlReport 创建爬取报告
func NewCrawlReport(queue string, workers int) *CrawlReport {
	return &CrawlReport{
		RunID:     uuid.NewString(),
		StartTime: time.Now(),
		Queue:     queue,
		Workers:   workers,
	}
}

// Finish 结束计时
func (r *CrawlReport) Finish(stats CrawlStats) {
	r.EndTime = time.Now()
	stats.Duration = r.EndTime.Sub(r.StartTime).Seconds()
	r.Stats = stats
}

// ExportReport 导出报告
type ExportReport struct {
	Sink     string  `json:"sink"`     // md / sql / mongo / csv
	Total    int     `json:"total"`    // 读取条数
	Valid    int     `json:"valid"`    // 通过有效性过滤
	Invalid  int     `json:"invalid"`  // 被过滤
	Written  int     `json:"written"`  // 成功写入
	Skipped  int     `json:"skipped"`  // 路径过短或重复
	Failed   int     `json:"failed"`   // 写入失败
	Duration float64 `json:"duration"` // 秒
}
