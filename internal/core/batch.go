package core

import (
	"context"
	"fmt"
	"time"

	"github.com/RecoveryAshes/WxSpider/internal/export"
	"github.com/RecoveryAshes/WxSpider/internal/models"
	"github.com/RecoveryAshes/WxSpider/internal/store"
	"github.com/RecoveryAshes/WxSpider/internal/utils"
	"github.com/schollz/progressbar/v3"
)

// ExportRunner 批量导出器
// 分页读取记录列表,攒够一批写入导出目标。单批失败记入Failed后继续
type ExportRunner struct {
	reader       *store.Reader
	batchSize    int
	reportsDir   string
	showProgress bool
}

// NewExportRunner 创建批量导出器,reportsDir为空时不保存报告
func NewExportRunner(reader *store.Reader, batchSize int, reportsDir string) *ExportRunner {
	if batchSize <= 0 {
		batchSize = store.DefaultPageSize
	}
	return &ExportRunner{
		reader:       reader,
		batchSize:    batchSize,
		reportsDir:   reportsDir,
		showProgress: true,
	}
}

// ExportQuestions 导出题目记录,无效记录在读取时丢弃
func (r *ExportRunner) ExportQuestions(ctx context.Context, sink export.Sink) (*models.ExportReport, error) {
	startTime := time.Now()
	report := &models.ExportReport{Sink: sink.Name()}

	total, err := r.reader.Len(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取记录数失败: %w", err)
	}
	utils.Infof("🚀 开始导出到 %s: 共 %d 条", sink.Name(), total)

	bar := r.newBar(total, "导出到 "+sink.Name())
	batch := make([]*models.QuestionRecord, 0, r.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		result, err := sink.Write(ctx, batch)
		report.Written += result.Written
		report.Skipped += result.Skipped
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			report.Failed += len(batch) - result.Written - result.Skipped
			utils.Errorf("❌ 写入 %d 条失败: %v", len(batch), err)
		}
		batch = make([]*models.QuestionRecord, 0, r.batchSize)
		return nil
	}

	stats, err := r.reader.EachRecord(ctx, func(index int64, rec *models.QuestionRecord) error {
		batch = append(batch, rec)
		if bar != nil {
			bar.Set64(index + 1)
		}
		if len(batch) >= r.batchSize {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	r.fill(report, stats, startTime, bar)
	if err != nil {
		return report, fmt.Errorf("导出中断: %w", err)
	}

	r.finish(report)
	return report, nil
}

// ExportFeed 导出新闻列表行
func (r *ExportRunner) ExportFeed(ctx context.Context, sink export.FeedSink) (*models.ExportReport, error) {
	startTime := time.Now()
	report := &models.ExportReport{Sink: sink.Name()}

	total, err := r.reader.Len(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取记录数失败: %w", err)
	}
	utils.Infof("🚀 开始导出到 %s: 共 %d 条", sink.Name(), total)

	bar := r.newBar(total, "导出到 "+sink.Name())
	rows := make([]*models.FeedRow, 0, r.batchSize)

	flush := func() error {
		if len(rows) == 0 {
			return nil
		}
		n, err := sink.WriteRows(ctx, rows)
		report.Written += n
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			report.Failed += len(rows) - n
			utils.Errorf("❌ 写入 %d 行失败: %v", len(rows), err)
		}
		rows = make([]*models.FeedRow, 0, r.batchSize)
		return nil
	}

	stats, err := r.reader.EachFeedRow(ctx, func(index int64, row *models.FeedRow) error {
		rows = append(rows, row)
		if bar != nil {
			bar.Set64(index + 1)
		}
		if len(rows) >= r.batchSize {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	r.fill(report, stats, startTime, bar)
	if err != nil {
		return report, fmt.Errorf("导出中断: %w", err)
	}

	r.finish(report)
	return report, nil
}

func (r *ExportRunner) newBar(total int64, description string) *progressbar.ProgressBar {
	if !r.showProgress || total == 0 {
		return nil
	}
	return utils.NewProgressBar(int(total), description)
}

// fill 汇总读取统计
func (r *ExportRunner) fill(report *models.ExportReport, stats store.ReadStats, startTime time.Time, bar *progressbar.ProgressBar) {
	if bar != nil {
		bar.Finish()
	}
	report.Total = int(stats.Total)
	report.Valid = int(stats.Valid)
	report.Invalid = int(stats.Invalid + stats.Malformed)
	report.Duration = time.Since(startTime).Seconds()
}

// finish 保存报告并打印摘要
func (r *ExportRunner) finish(report *models.ExportReport) {
	if r.reportsDir != "" {
		if path, err := utils.NewReporter(r.reportsDir).SaveExportReport(report); err != nil {
			utils.Warnf("保存导出报告失败: %v", err)
		} else {
			utils.Infof("📄 导出报告: %s", path)
		}
	}
	printExportSummary(report)
}

// printExportSummary 打印导出摘要
func printExportSummary(report *models.ExportReport) {
	utils.Info("==================================================")
	utils.Infof("📊 导出摘要 [%s]", report.Sink)
	utils.Info("==================================================")
	utils.Infof("读取: %d", report.Total)
	utils.Infof("有效: %d", report.Valid)
	utils.Infof("无效(已过滤): %d", report.Invalid)
	utils.Infof("✅ 写入: %d", report.Written)
	utils.Infof("⏭️  跳过: %d", report.Skipped)
	utils.Infof("❌ 失败: %d", report.Failed)
	utils.Infof("⏱️  总耗时: %s", utils.FormatDuration(time.Duration(report.Duration*float64(time.Second))))
	utils.Info("==================================================")
}
