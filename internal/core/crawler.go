package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RecoveryAshes/WxSpider/internal/crawlers"
	"github.com/RecoveryAshes/WxSpider/internal/models"
	"github.com/RecoveryAshes/WxSpider/internal/spider"
	"github.com/RecoveryAshes/WxSpider/internal/store"
	"github.com/RecoveryAshes/WxSpider/internal/utils"
	"github.com/rs/zerolog"
)

const (
	// defaultPollInterval 队列为空时的轮询间隔
	defaultPollInterval = 500 * time.Millisecond

	// scaleCheckInterval 内存压力检查间隔
	scaleCheckInterval = 5 * time.Second
)

// Fetcher 下载接口,由 crawlers.Downloader 实现
type Fetcher interface {
	Fetch(ctx context.Context, node *models.CrawlNode) (*crawlers.Response, error)
	ShouldRetry(node *models.CrawlNode, resp *crawlers.Response, err error) bool
}

// CrawlerDeps 抓取协调器依赖
type CrawlerDeps struct {
	Scheduler crawlers.Scheduler
	Fetcher   Fetcher
	Extractor *spider.Extractor
	Records   store.RecordStore
	Monitor   *crawlers.ResourceMonitor // 为nil时按配置的并发数
}

// Crawler 抓取协调器
// worker从队列取节点,下载后交给解析器,新节点放回队列,题目追加到记录列表
type Crawler struct {
	cfg  *Config
	deps CrawlerDeps

	workers      int
	pollInterval time.Duration
	idleTimeout  time.Duration

	// 活跃worker上限,内存紧张时下调
	allowed  atomic.Int32
	inflight atomic.Int32
	lastBusy atomic.Int64 // UnixNano

	stats models.CrawlStats
	mu    sync.Mutex

	log zerolog.Logger
}

// NewCrawler 创建抓取协调器
func NewCrawler(cfg *Config, deps CrawlerDeps) *Crawler {
	workers := cfg.Spider.Concurrency
	if deps.Monitor != nil {
		if n := deps.Monitor.MaxWorkers(); n < workers {
			workers = n
		}
	}
	if workers < 1 {
		workers = 1
	}

	c := &Crawler{
		cfg:          cfg,
		deps:         deps,
		workers:      workers,
		pollInterval: defaultPollInterval,
		idleTimeout:  cfg.Spider.IdleTimeout,
		log:          utils.With("crawler"),
	}
	c.allowed.Store(int32(workers))
	return c
}

// Workers 实际启动的worker数
func (c *Crawler) Workers() int { return c.workers }

// Stats 当前统计快照
func (c *Crawler) Stats() models.CrawlStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Crawl 执行抓取,直到队列空闲超过idle_timeout或ctx取消
// idle_timeout为0时一直运行
func (c *Crawler) Crawl(ctx context.Context) (*models.CrawlReport, error) {
	report := models.NewCrawlReport(c.cfg.Spider.Queue, c.workers)

	c.log.Info().Msg("🚀 开始抓取任务")
	c.log.Info().Msgf("队列: %s", c.cfg.Spider.Queue)
	c.log.Info().Msgf("worker数: %d", c.workers)
	if c.idleTimeout > 0 {
		c.log.Info().Msgf("空闲超时: %v", c.idleTimeout)
	} else {
		c.log.Info().Msg("空闲超时: 不限 (持续等待新请求)")
	}

	if err := c.seedIfEmpty(ctx); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if c.deps.Monitor != nil {
		c.deps.Monitor.StartMonitoring(time.Second)
		defer c.deps.Monitor.StopMonitoring()
		go c.watchMemory(runCtx)
	}

	c.lastBusy.Store(time.Now().UnixNano())

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.worker(runCtx, id)
		}(i)
	}
	wg.Wait()

	report.Finish(c.Stats())
	c.printSummary(report)

	if path, err := utils.NewReporter(c.cfg.Paths.ReportsDir()).SaveCrawlReport(report); err != nil {
		c.log.Warn().Err(err).Msg("保存抓取报告失败")
	} else {
		c.log.Info().Msgf("📄 抓取报告: %s", path)
	}

	if err := ctx.Err(); err != nil {
		c.log.Info().Msg("抓取已中断")
	}
	return report, nil
}

// seedIfEmpty 队列为空时写入起始URL
func (c *Crawler) seedIfEmpty(ctx context.Context) error {
	n, err := c.deps.Scheduler.Len(ctx)
	if err != nil {
		return fmt.Errorf("读取队列长度失败: %w", err)
	}
	if n > 0 {
		c.log.Info().Msgf("队列中已有 %d 个待处理请求,继续上次进度", n)
		return nil
	}

	pushed, err := c.deps.Scheduler.Seed(ctx, []string{c.cfg.Spider.StartURL}, false)
	if err != nil {
		return fmt.Errorf("写入起始URL失败: %w", err)
	}
	if pushed > 0 {
		c.log.Info().Msgf("写入起始URL: %s", c.cfg.Spider.StartURL)
	}
	return nil
}

// worker 循环取节点处理
func (c *Crawler) worker(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}

		// 超出当前上限的worker暂停取任务,空闲超时后同样退出
		if int32(id) >= c.allowed.Load() {
			if c.idle() {
				c.log.Debug().Int("worker", id).Msg("暂停中的worker空闲超时,退出")
				return
			}
			if !c.pause(ctx) {
				return
			}
			continue
		}

		c.inflight.Add(1)
		node, err := c.deps.Scheduler.Next(ctx)
		if err != nil {
			c.inflight.Add(-1)
			switch {
			case errors.Is(err, crawlers.ErrQueueEmpty):
				if c.idle() {
					c.log.Debug().Int("worker", id).Msg("队列空闲超时,退出")
					return
				}
			case errors.Is(err, crawlers.ErrQueueClosed), ctx.Err() != nil:
				return
			default:
				c.log.Warn().Err(err).Msg("读取队列失败")
			}
			if !c.pause(ctx) {
				return
			}
			continue
		}

		c.process(ctx, node)
		c.lastBusy.Store(time.Now().UnixNano())
		c.inflight.Add(-1)
	}
}

// idle 没有处理中的节点且空闲时间超过idle_timeout
func (c *Crawler) idle() bool {
	if c.idleTimeout <= 0 || c.inflight.Load() > 0 {
		return false
	}
	return time.Since(time.Unix(0, c.lastBusy.Load())) >= c.idleTimeout
}

// pause 等待一个轮询间隔,ctx取消时返回false
func (c *Crawler) pause(ctx context.Context) bool {
	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// process 下载并解析一个节点
func (c *Crawler) process(ctx context.Context, node *models.CrawlNode) {
	log := c.log.With().Str("stage", string(node.Stage)).Str("url", node.URL).Logger()

	resp, err := c.deps.Fetcher.Fetch(ctx, node)
	if ctx.Err() != nil {
		return
	}
	c.update(func(s *models.CrawlStats) { s.Requests++ })

	if err != nil || resp.StatusCode >= 400 {
		if c.deps.Fetcher.ShouldRetry(node, resp, err) {
			if _, qerr := c.deps.Scheduler.Enqueue(ctx, node.Retry()); qerr != nil {
				log.Warn().Err(qerr).Msg("重试入队失败")
			}
			c.update(func(s *models.CrawlStats) { s.Retries++ })
			log.Debug().Int("retry", node.RetryTimes+1).Msgf("请求失败,重新入队: %v", describe(resp, err))
			return
		}
		c.update(func(s *models.CrawlStats) { s.FailedRequests++ })
		log.Warn().Int("retry", node.RetryTimes).Msgf("请求最终失败: %v", describe(resp, err))
		return
	}

	c.update(func(s *models.CrawlStats) { countStage(s, node.Stage) })

	result, err := c.deps.Extractor.Handle(node, resp.Body)
	if err != nil {
		c.update(func(s *models.CrawlStats) { s.FailedRequests++ })
		log.Warn().Err(err).Msg("解析响应失败")
		return
	}

	duplicates := 0
	for _, next := range result.Nodes {
		added, err := c.deps.Scheduler.Enqueue(ctx, next)
		if err != nil {
			log.Warn().Err(err).Str("next", next.URL).Msg("入队失败")
			continue
		}
		if !added {
			duplicates++
		}
	}

	if len(result.Records) > 0 {
		if err := c.deps.Records.Append(ctx, result.Records...); err != nil {
			log.Error().Err(err).Msgf("保存 %d 道题失败", len(result.Records))
			return
		}
	}
	for _, reason := range result.Skipped {
		log.Debug().Msgf("跳过: %s", reason)
	}

	c.update(func(s *models.CrawlStats) {
		s.Duplicates += duplicates
		s.Records += len(result.Records)
		s.Skipped += len(result.Skipped)
	})

	if len(result.Records) > 0 {
		log.Info().Msgf("✅ %s: %d 道题", node.Meta.Path.String(), len(result.Records))
	}
}

// watchMemory 内存紧张时减少活跃worker,恢复后还原
func (c *Crawler) watchMemory(ctx context.Context) {
	ticker := time.NewTicker(scaleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			target := c.deps.Monitor.WorkerTarget(c.workers)
			if prev := c.allowed.Swap(int32(target)); int(prev) != target {
				c.log.Warn().Int("from", int(prev)).Int("to", target).Msg("内存压力变化,调整活跃worker")
			}
		}
	}
}

func (c *Crawler) update(fn func(s *models.CrawlStats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}

// countStage 按阶段计数
func countStage(s *models.CrawlStats, stage models.Stage) {
	switch stage {
	case models.StageCategoryPage:
		s.RootPages++
	case models.StageSubjectPage:
		s.SubjectPages++
	case models.StageExamPointPage:
		s.ExamPointPages++
	case models.StageJSONPayload:
		s.JSONPayloads++
	}
}

func describe(resp *crawlers.Response, err error) string {
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("HTTP %d", resp.StatusCode)
}

// printSummary 打印抓取摘要
func (c *Crawler) printSummary(report *models.CrawlReport) {
	s := report.Stats
	utils.Info("==================================================")
	utils.Info("📊 抓取摘要")
	utils.Info("==================================================")
	utils.Infof("请求数: %d", s.Requests)
	utils.Infof("首页/大类/考点页: %d / %d / %d", s.RootPages, s.SubjectPages, s.ExamPointPages)
	utils.Infof("题目接口: %d", s.JSONPayloads)
	utils.Infof("✅ 题目: %d", s.Records)
	utils.Infof("⏭️  跳过条目: %d", s.Skipped)
	utils.Infof("🔁 重复请求: %d", s.Duplicates)
	utils.Infof("🔄 重试: %d", s.Retries)
	utils.Infof("❌ 失败请求: %d", s.FailedRequests)
	utils.Infof("⏱️  总耗时: %.2f秒", s.Duration)
	utils.Info("==================================================")
}

// LoadCookies 读取登录服务保存的最新Cookie,文件不存在时返回nil
func LoadCookies(path string) (map[string]string, error) {
	bundle, err := models.LoadCookieBundle(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			utils.Warnf("Cookie文件不存在: %s,题目接口请求将不带登录状态", path)
			return nil, nil
		}
		return nil, err
	}
	utils.Infof("已加载 %d 个Cookie (获取于 %s)", bundle.Metadata.Count, bundle.Metadata.FetchedAt)
	return bundle.Cookies, nil
}

// NewDownloader 按配置创建下载器
func NewDownloader(cfg *Config, headers models.HeaderProvider, cookies map[string]string) (*crawlers.Downloader, error) {
	var throttle *crawlers.AutoThrottle
	if at := cfg.Spider.AutoThrottle; at.Enabled {
		throttle = crawlers.NewAutoThrottle(at.StartDelay, cfg.Spider.DownloadDelay, at.MaxDelay, at.TargetConcurrency)
	}

	return crawlers.NewDownloader(crawlers.DownloaderOptions{
		AllowedDomain:  cfg.Spider.AllowedDomain,
		Concurrency:    cfg.Spider.Concurrency,
		PerDomain:      cfg.Spider.PerDomain,
		Delay:          cfg.Spider.DownloadDelay,
		RandomizeDelay: cfg.Spider.RandomizeDelay,
		RequestTimeout: cfg.Spider.RequestTimeout,
		RetryTimes:     cfg.Spider.RetryTimes,
		RetryHTTPCodes: cfg.Spider.RetryHTTPCodes,
		Headers:        headers,
		Cookies:        cookies,
		Throttle:       throttle,
	})
}

// NewResourceMonitor 按配置创建资源监控器
func NewResourceMonitor(cfg *Config) *crawlers.ResourceMonitor {
	const mb = 1024 * 1024
	return crawlers.NewResourceMonitor(crawlers.ResourceMonitorConfig{
		SafetyReserveMemory: int64(cfg.Resource.SafetyReserveMemory) * mb,
		SafetyThreshold:     int64(cfg.Resource.SafetyThreshold) * mb,
		CPULoadThreshold:    cfg.Resource.CPULoadThreshold,
		MaxWorkersLimit:     cfg.Spider.Concurrency,
		WorkerMemoryUsage:   int64(cfg.Resource.WorkerMemoryUsage) * mb,
	})
}
