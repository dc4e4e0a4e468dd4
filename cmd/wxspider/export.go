package main

import (
	"context"
	"fmt"

	"github.com/RecoveryAshes/WxSpider/internal/core"
	"github.com/RecoveryAshes/WxSpider/internal/export"
	"github.com/RecoveryAshes/WxSpider/internal/store"
	"github.com/RecoveryAshes/WxSpider/internal/utils"
	"github.com/spf13/cobra"
)

// 导出参数
var (
	exportFrom      string
	exportBatchSize int
)

var exportCmd = &cobra.Command{
	Use:   "export <md|sql|mongo|csv>",
	Short: "导出抓取结果",
	Long: `分页读取记录列表,丢弃题干/解析/路径为空的记录后写入导出目标。

  md     按分类路径写Markdown文件 (export.markdown_dir)
  sql    写入MySQL或PostgreSQL (export.sql.driver / export.sql.dsn)
  mongo  写入MongoDB (export.mongo.uri)
  csv    新闻列表数据 (feed.items_key) 追加到CSV (feed.csv_path)

默认从Redis读取,--from 指定memory模式产生的JSON Lines文件。`,
	ValidArgs: exportTargets,
	Args:      cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := appConfig
		target := args[0]

		if err := ValidateExportTarget(target); err != nil {
			return err
		}
		batchSize := cfg.Export.BatchSize
		if exportBatchSize > 0 {
			batchSize = exportBatchSize
		}

		key := cfg.Redis.Keys.Items
		if target == "csv" {
			key = cfg.Feed.ItemsKey
		}
		src, closeSrc, err := openSource(ctx, cfg, key)
		if err != nil {
			return err
		}
		defer closeSrc()

		runner := core.NewExportRunner(store.NewReader(src, int64(batchSize)), batchSize, cfg.Paths.ReportsDir())

		if target == "csv" {
			sink, err := export.NewCSVSink(cfg.Feed.CSVPath)
			if err != nil {
				return err
			}
			defer sink.Close()

			if _, err := runner.ExportFeed(ctx, sink); err != nil {
				return err
			}
			utils.Infof("✨ 已导出到 %s", cfg.Feed.CSVPath)
			return nil
		}

		sink, err := openSink(ctx, cfg, target)
		if err != nil {
			return err
		}
		defer func() {
			if err := sink.Close(); err != nil {
				utils.Warnf("关闭导出目标失败: %v", err)
			}
		}()

		if _, err := runner.ExportQuestions(ctx, sink); err != nil {
			return err
		}
		utils.Info("✨ 导出完成!")
		return nil
	},
}

// openSource 默认读Redis列表,指定 --from 时读文件
func openSource(ctx context.Context, cfg *core.Config, key string) (store.Source, func(), error) {
	if exportFrom != "" {
		utils.Infof("从文件读取: %s", exportFrom)
		return store.NewFileList(exportFrom), func() {}, nil
	}

	rdb, err := newRedisClient(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	utils.Infof("从Redis读取: %s", key)
	return store.NewRedisList(rdb, key), func() { rdb.Close() }, nil
}

// openSink 创建题目导出目标
func openSink(ctx context.Context, cfg *core.Config, target string) (export.Sink, error) {
	switch target {
	case "md":
		return export.NewMarkdownSink(cfg.Export.MarkdownDir)
	case "sql":
		if cfg.Export.SQL.DSN == "" {
			return nil, fmt.Errorf("未配置 export.sql.dsn")
		}
		return export.NewSQLSink(ctx, cfg.Export.SQL.Driver, cfg.Export.SQL.DSN, cfg.Export.SQL.Table)
	case "mongo":
		return export.NewMongoSink(ctx, cfg.Export.Mongo.URI, cfg.Export.Mongo.Database, cfg.Export.Mongo.Collection)
	}
	return nil, fmt.Errorf("不支持的导出目标: %s", target)
}

func init() {
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "从JSON Lines文件读取 (memory模式的 results/items.jsonl)")
	exportCmd.Flags().IntVar(&exportBatchSize, "batch-size", 0, "每批写入条数,默认使用配置")

	rootCmd.AddCommand(exportCmd)
}
