package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/WxSpider/internal/core"
	"github.com/RecoveryAshes/WxSpider/internal/crawlers"
	"github.com/RecoveryAshes/WxSpider/internal/spider"
	"github.com/RecoveryAshes/WxSpider/internal/store"
	"github.com/RecoveryAshes/WxSpider/internal/utils"
	"github.com/spf13/cobra"
)

// 抓取参数
var (
	queueMode   string
	workers     int
	idleTimeout time.Duration
	headers     []string
	seedForce   bool
)

// memoryItemsFile 内存队列模式下题目写入的文件
const memoryItemsFile = "items.jsonl"

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "抓取题库",
	Long: `从队列取请求抓取题库,题目追加到记录列表。

队列为空时写入起始URL (spider.start_url)。redis 模式下队列和去重集合持久化,
多个进程可以同时运行,中断后再次运行会继续上次进度。memory 模式只在进程内,
题目写入 results/items.jsonl。

自定义请求头示例:
  wxspider crawl -H "User-Agent: MyBot/1.0" -H "Referer: https://ks.wangxiao.cn/"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := ValidateCrawlFlags(queueMode, workers, idleTimeout); err != nil {
			return err
		}

		overrides := core.Overrides{Queue: queueMode, Concurrency: workers}
		if cmd.Flags().Changed("idle-timeout") {
			overrides.IdleTimeout = &idleTimeout
		}
		cfg := appConfig.WithOverrides(overrides)

		headerManager, err := core.NewHeaderManager(cfg.Spider, headers)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}
		for name, value := range headerManager.GetSafeHeaders() {
			utils.Debugf("请求头 %s: %s", name, value)
		}

		cookies, err := core.LoadCookies(cfg.Paths.CookieLatestFile())
		if err != nil {
			return err
		}
		if len(cookies) > 0 {
			utils.Debugf("Cookie: %s", utils.NewRedactor().RedactCookies(cookies))
		}

		downloader, err := core.NewDownloader(cfg, headerManager, cookies)
		if err != nil {
			return fmt.Errorf("创建下载器失败: %w", err)
		}
		defer downloader.Wait()

		scheduler, records, err := openQueue(ctx, cfg)
		if err != nil {
			return err
		}
		defer scheduler.Close()

		crawler := core.NewCrawler(cfg, core.CrawlerDeps{
			Scheduler: scheduler,
			Fetcher:   downloader,
			Extractor: spider.NewExtractor(spider.Options{
				AllowedDomain: cfg.Spider.AllowedDomain,
				PostURL:       cfg.Spider.PostURL,
			}),
			Records: records,
			Monitor: core.NewResourceMonitor(cfg),
		})

		if _, err := crawler.Crawl(ctx); err != nil {
			return fmt.Errorf("抓取失败: %w", err)
		}

		utils.Info("✨ 抓取任务完成!")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "写入起始URL到Redis",
	Long: `把 spider.start_url 写入起始URL列表 (redis.keys.start_urls)。

列表非空时跳过,--force 强制追加。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := appConfig

		rdb, err := newRedisClient(ctx, cfg)
		if err != nil {
			return err
		}
		scheduler := crawlers.NewRedisScheduler(rdb, queueKeys(cfg))
		defer scheduler.Close()

		pushed, err := scheduler.Seed(ctx, []string{cfg.Spider.StartURL}, seedForce)
		if err != nil {
			return err
		}
		if pushed == 0 {
			utils.Info("起始URL列表非空,跳过 (使用 --force 强制写入)")
		} else {
			utils.Infof("✅ 已写入起始URL: %s", cfg.Spider.StartURL)
		}

		stats, err := scheduler.Stats(ctx)
		if err != nil {
			return err
		}
		utils.Infof("起始URL: %d, 待处理请求: %d", stats.StartURLs, stats.Requests)
		return nil
	},
}

// openQueue 按 spider.queue 创建队列和记录列表
func openQueue(ctx context.Context, cfg *core.Config) (crawlers.Scheduler, store.RecordStore, error) {
	if cfg.Spider.Queue == "memory" {
		path := filepath.Join(cfg.Paths.ResultsDir, memoryItemsFile)
		utils.Infof("使用进程内队列,题目写入 %s", path)
		return crawlers.NewMemoryScheduler(), store.NewFileList(path), nil
	}

	rdb, err := newRedisClient(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	keys := queueKeys(cfg)
	utils.Infof("使用Redis队列: %s, 题目写入 %s", keys.Requests, keys.Items)
	return crawlers.NewRedisScheduler(rdb, keys), store.NewRedisList(rdb, keys.Items), nil
}

func init() {
	crawlCmd.Flags().StringVar(&queueMode, "queue", "", "队列类型 (redis|memory),默认使用配置")
	crawlCmd.Flags().IntVar(&workers, "workers", 0, "并发worker数 (1-256),默认使用配置")
	crawlCmd.Flags().DurationVar(&idleTimeout, "idle-timeout", 0, "队列空闲多久后退出,0表示一直运行")
	crawlCmd.Flags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")

	seedCmd.Flags().BoolVar(&seedForce, "force", false, "起始URL列表非空时也写入")

	rootCmd.AddCommand(crawlCmd, seedCmd)
}
