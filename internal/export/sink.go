// Package export 把记录列表导出到Markdown、关系库、MongoDB和CSV
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/RecoveryAshes/WxSpider/internal/models"
)

// BatchResult 一批记录的写入结果
type BatchResult struct {
	Written int
	Skipped int // 路径过短、内容重复等主动跳过的记录
}

// Sink 题目导出目标
type Sink interface {
	Name() string
	// Write 写入一批有效记录,返回错误表示整批失败
	Write(ctx context.Context, batch []*models.QuestionRecord) (BatchResult, error)
	Close() error
}

// FeedSink 列表数据导出目标
type FeedSink interface {
	Name() string
	WriteRows(ctx context.Context, rows []*models.FeedRow) (int, error)
	Close() error
}

// PathSeparator 路径拼接符
const PathSeparator = "->"

// Row 清洗后的一道题,关系库和MongoDB共用
type Row struct {
	Path      string    `bson:"path"`
	PathList  []string  `bson:"path_list"`
	Content   string    `bson:"content"`
	Options   string    `bson:"options"` // JSON数组
	Answer    string    `bson:"answer"`
	Analysis  string    `bson:"analysis"`
	CreatedAt time.Time `bson:"created_at"`
}

// ToRow 清洗记录: 去掉除img外的标签,从解析中拆出答案
func ToRow(rec *models.QuestionRecord, now time.Time) Row {
	return Row{
		Path:      strings.Join(rec.Path, PathSeparator),
		PathList:  append([]string(nil), rec.Path...),
		Content:   CleanContent(rec.Content),
		Options:   optionsJSON(rec.Options),
		Answer:    ExtractAnswer(rec.TextAnalysis),
		Analysis:  CleanAnalysis(rec.TextAnalysis),
		CreatedAt: now,
	}
}

// optionsJSON 选项原样编码,不转义HTML字符
func optionsJSON(options []string) string {
	if len(options) == 0 {
		return "[]"
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(options); err != nil {
		return "[]"
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
