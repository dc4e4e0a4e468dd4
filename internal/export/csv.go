package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/WxSpider/internal/models"
)

// CSVSink 列表数据追加写入CSV,空文件先写表头
type CSVSink struct {
	file   *os.File
	writer *csv.Writer
	path   string
}

// NewCSVSink 以追加方式打开CSV文件
func NewCSVSink(path string) (*CSVSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("创建目录失败: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("打开CSV失败: %w", err)
	}

	s := &CSVSink{file: f, writer: csv.NewWriter(f), path: path}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		if err := s.writer.Write(models.FeedCSVHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("写入表头失败: %w", err)
		}
		s.writer.Flush()
	}
	return s, nil
}

func (s *CSVSink) Name() string { return "csv" }

// WriteRows 写入并刷新
func (s *CSVSink) WriteRows(_ context.Context, rows []*models.FeedRow) (int, error) {
	for i, row := range rows {
		if err := s.writer.Write(row.CSVRecord()); err != nil {
			return i, fmt.Errorf("写入CSV失败: %w", err)
		}
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return 0, fmt.Errorf("写入CSV失败: %w", err)
	}
	return len(rows), nil
}

// Close 刷新并关闭文件
func (s *CSVSink) Close() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
