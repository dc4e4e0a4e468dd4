package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RecoveryAshes/WxSpider/internal/export"
	"github.com/RecoveryAshes/WxSpider/internal/models"
	"github.com/RecoveryAshes/WxSpider/internal/store"
)

// recordingSink 记录每批写入,第failOn次调用返回错误
type recordingSink struct {
	calls   int
	failOn  int
	batches [][]*models.QuestionRecord
}

func (s *recordingSink) Name() string { return "fake" }

func (s *recordingSink) Write(_ context.Context, batch []*models.QuestionRecord) (export.BatchResult, error) {
	s.calls++
	if s.calls == s.failOn {
		return export.BatchResult{}, errors.New("写入失败")
	}
	s.batches = append(s.batches, batch)
	return export.BatchResult{Written: len(batch)}, nil
}

func (s *recordingSink) Close() error { return nil }

func question(content string) *models.QuestionRecord {
	return &models.QuestionRecord{
		Path:         models.Lineage{"税务师", "税法二", "第六章"},
		Content:      content,
		Options:      []string{"A、甲", "B、乙"},
		TextAnalysis: "A<p>解析</p>",
	}
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		t.Fatal(err)
	}
}

func newQuestionList(t *testing.T) *store.FileList {
	t.Helper()
	list := store.NewFileList(filepath.Join(t.TempDir(), "items.jsonl"))
	ctx := context.Background()
	if err := list.Append(ctx, question("一"), question("二"), question("")); err != nil {
		t.Fatal(err)
	}
	appendLine(t, list.Path(), "{不是JSON")
	if err := list.Append(ctx, question("三"), question("四"), question("五")); err != nil {
		t.Fatal(err)
	}
	return list
}

func TestExportRunner_ExportQuestions(t *testing.T) {
	t.Run("按批写入并过滤无效记录", func(t *testing.T) {
		reportsDir := t.TempDir()
		runner := NewExportRunner(store.NewReader(newQuestionList(t), 3), 2, reportsDir)
		runner.showProgress = false

		sink := &recordingSink{}
		report, err := runner.ExportQuestions(context.Background(), sink)
		if err != nil {
			t.Fatal(err)
		}

		if report.Total != 7 || report.Valid != 5 || report.Invalid != 2 {
			t.Errorf("读取统计 = %+v", report)
		}
		if report.Written != 5 || report.Failed != 0 {
			t.Errorf("写入统计 = %+v", report)
		}

		var sizes []int
		var contents []string
		for _, b := range sink.batches {
			sizes = append(sizes, len(b))
			for _, r := range b {
				contents = append(contents, r.Content)
			}
		}
		if len(sizes) != 3 || sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
			t.Errorf("批大小 = %v", sizes)
		}
		if strings.Join(contents, ",") != "一,二,三,四,五" {
			t.Errorf("写入顺序 = %v", contents)
		}

		if _, err := os.Stat(filepath.Join(reportsDir, "export_fake.json")); err != nil {
			t.Errorf("导出报告未保存: %v", err)
		}
	})

	t.Run("单批失败继续", func(t *testing.T) {
		runner := NewExportRunner(store.NewReader(newQuestionList(t), 0), 2, "")
		runner.showProgress = false

		sink := &recordingSink{failOn: 2}
		report, err := runner.ExportQuestions(context.Background(), sink)
		if err != nil {
			t.Fatal(err)
		}
		if report.Written != 3 || report.Failed != 2 {
			t.Errorf("写入 = %d, 失败 = %d", report.Written, report.Failed)
		}
	})

	t.Run("取消后中断", func(t *testing.T) {
		runner := NewExportRunner(store.NewReader(newQuestionList(t), 1), 1, "")
		runner.showProgress = false

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := runner.ExportQuestions(ctx, &recordingSink{}); err == nil {
			t.Error("ctx已取消应返回错误")
		}
	})
}

func TestExportRunner_ExportFeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "news.jsonl")
	appendLine(t, path, `{"title":"标题一","title_url":"https://news.163.com/1","time":"2024-01-01"}`)
	appendLine(t, path, `{"title":"","title_url":"https://news.163.com/2","time":"2024-01-02"}`)
	appendLine(t, path, `{"title":"标题三","title_url":"https://news.163.com/3","time":""}`)

	csvPath := filepath.Join(t.TempDir(), "news.csv")
	sink, err := export.NewCSVSink(csvPath)
	if err != nil {
		t.Fatal(err)
	}

	runner := NewExportRunner(store.NewReader(store.NewFileList(path), 0), 10, "")
	runner.showProgress = false

	report, err := runner.ExportFeed(context.Background(), sink)
	if err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	if report.Sink != "csv" || report.Total != 3 || report.Valid != 2 || report.Written != 2 {
		t.Errorf("report = %+v", report)
	}

	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Errorf("CSV行数 = %d, 期望3 (含表头)\n%s", len(lines), data)
	}
}
