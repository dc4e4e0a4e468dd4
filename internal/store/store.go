// Package store 题目记录的追加写入与分页读取
//
// 写入方只追加,不修改不删除。读取方按页遍历,
// 解析失败和无效记录(题干、解析、路径为空)在读取时丢弃。
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/RecoveryAshes/WxSpider/internal/models"
)

// DefaultPageSize 默认每页读取条数
const DefaultPageSize = 500

// RecordStore 记录写入端,可被多个worker同时调用
type RecordStore interface {
	Append(ctx context.Context, records ...*models.QuestionRecord) error
}

// Source 按下标读取原始JSON的列表
type Source interface {
	Len(ctx context.Context) (int64, error)
	// Range 读取 [start, stop] 闭区间
	Range(ctx context.Context, start, stop int64) ([]string, error)
}

// ReadStats 读取统计
type ReadStats struct {
	Total     int64 `json:"total"`
	Valid     int64 `json:"valid"`
	Invalid   int64 `json:"invalid"`   // 题干/解析/路径为空
	Malformed int64 `json:"malformed"` // JSON解析失败
}

// Reader 分页读取并过滤
type Reader struct {
	src      Source
	pageSize int64
}

// NewReader 创建读取器
func NewReader(src Source, pageSize int64) *Reader {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Reader{src: src, pageSize: pageSize}
}

// Len 列表长度(含无效记录)
func (r *Reader) Len(ctx context.Context) (int64, error) {
	return r.src.Len(ctx)
}

// EachRaw 依次回调每条原始数据,fn返回错误时停止
func (r *Reader) EachRaw(ctx context.Context, fn func(index int64, raw string) error) (int64, error) {
	total, err := r.src.Len(ctx)
	if err != nil {
		return 0, err
	}

	var seen int64
	for start := int64(0); start < total; start += r.pageSize {
		if err := ctx.Err(); err != nil {
			return seen, err
		}

		stop := start + r.pageSize - 1
		if stop >= total {
			stop = total - 1
		}
		page, err := r.src.Range(ctx, start, stop)
		if err != nil {
			return seen, fmt.Errorf("读取第 %d-%d 条失败: %w", start, stop, err)
		}

		for i, raw := range page {
			seen++
			if err := fn(start+int64(i), raw); err != nil {
				return seen, err
			}
		}
	}
	return seen, nil
}

// EachRecord 只回调有效的题目记录
func (r *Reader) EachRecord(ctx context.Context, fn func(index int64, rec *models.QuestionRecord) error) (ReadStats, error) {
	var stats ReadStats
	_, err := r.EachRaw(ctx, func(index int64, raw string) error {
		stats.Total++
		rec, err := models.DecodeQuestionRecord([]byte(raw))
		if err != nil {
			stats.Malformed++
			return nil
		}
		if !rec.Valid() {
			stats.Invalid++
			return nil
		}
		stats.Valid++
		return fn(index, rec)
	})
	return stats, err
}

// EachFeedRow 只回调有效的列表行
func (r *Reader) EachFeedRow(ctx context.Context, fn func(index int64, row *models.FeedRow) error) (ReadStats, error) {
	var stats ReadStats
	_, err := r.EachRaw(ctx, func(index int64, raw string) error {
		stats.Total++
		var row models.FeedRow
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			stats.Malformed++
			return nil
		}
		if !row.Valid() {
			stats.Invalid++
			return nil
		}
		stats.Valid++
		return fn(index, &row)
	})
	return stats, err
}
